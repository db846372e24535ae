// Package pipeline runs the forward and inverse flows: fetch, fit or
// reuse an encoder, apply it chunk by chunk, persist the result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"numflow/internal/chunk"
	"numflow/internal/dataset"
	"numflow/internal/job"
	"numflow/internal/layout"
	"numflow/internal/logging"
	"numflow/internal/registry"
	"numflow/internal/telemetry"
	"numflow/sink"
	"numflow/source"
)

// TransformedPrefix names the columns of a forward output.
const TransformedPrefix = "TransformedData"

// Fetcher is the part of source.Fetcher the runner needs.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (source.Dataset, error)
}

type Config struct {
	OutputDir  string
	Column     string
	ChunkSize  int
	MaxWorkers int
	Timeout    time.Duration
	Assembly   chunk.Policy
	OnError    chunk.OnError
	FitPolicy  string // registry.FitSample or registry.FitFull
	SampleRows int
}

type Runner struct {
	cfg     Config
	fetcher Fetcher
	reg     *registry.Registry
	sinks   []sink.Adapter
	log     *slog.Logger
}

func NewRunner(cfg Config, f Fetcher, reg *registry.Registry) *Runner {
	if cfg.FitPolicy == "" {
		cfg.FitPolicy = registry.FitSample
	}
	return &Runner{cfg: cfg, fetcher: f, reg: reg, log: logging.With("pipeline")}
}

func (r *Runner) AddSink(s sink.Adapter) { r.sinks = append(r.sinks, s) }

// Registry exposes the encoder registry for read-only inspection.
func (r *Runner) Registry() *registry.Registry { return r.reg }

// Close releases every sink.
func (r *Runner) Close() error {
	var errs []error
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Transform fetches link, fits an encoder for it unless one exists and
// writes the encoded rows next to the raw file.
func (r *Runner) Transform(ctx context.Context, link string) (job.Result, error) {
	start := time.Now()
	res := job.Result{JobID: uuid.NewString(), Operation: job.OpTransform}
	log := r.log.With("job", res.JobID, "op", res.Operation)

	if link == "" {
		return r.finish(log, res, start, &job.BadRequestError{Err: errors.New("link is required")})
	}

	ds, err := r.fetcher.Fetch(ctx, link)
	if err != nil {
		return r.finish(log, res, start, fmt.Errorf("failed to download file: %w", err))
	}
	datasetID, err := layout.DatasetID(ds.Path)
	if err != nil {
		return r.finish(log, res, start, &job.InternalError{Err: err})
	}

	rows, err := dataset.ReadColumn(ds.Path, r.cfg.Column, 0)
	if err != nil {
		return r.finish(log, res, start, err)
	}
	h, err := r.reg.FitOrGet(ctx, datasetID, r.loader(rows))
	if err != nil {
		return r.finish(log, res, start, fmt.Errorf("fit %s: %w", datasetID, err))
	}
	fitted, err := r.reg.Get(h.ID)
	if err != nil {
		return r.finish(log, res, start, err)
	}
	res.HandleID = h.ID

	out := layout.TransformedPath(r.cfg.OutputDir, ds.Path)
	header := dataset.Header(TransformedPrefix, fitted.OutputWidth())
	outcome, err := r.apply(ctx, res.Operation, rows, fitted.Transform, out, header)
	res.ChunkCount = outcome.Chunks
	if err != nil {
		return r.finish(log, res, start, err)
	}
	res.OutputPath = out
	res.RowCount = outcome.RowsOut
	res.SkippedChunks = outcome.Skipped
	res.Message = message("Transformation", outcome)
	return r.finish(log, res, start, nil)
}

// Inverse maps a forward output back to the original column using the
// encoder recorded for its dataset.
func (r *Runner) Inverse(ctx context.Context, transformedPath string) (job.Result, error) {
	start := time.Now()
	res := job.Result{JobID: uuid.NewString(), Operation: job.OpInverse}
	log := r.log.With("job", res.JobID, "op", res.Operation)

	datasetID, err := layout.DatasetIDFromTransformed(transformedPath)
	if err != nil {
		return r.finish(log, res, start, &job.BadRequestError{Err: err})
	}
	h, err := r.reg.Resolve(datasetID)
	if err != nil {
		return r.finish(log, res, start, err)
	}
	fitted, err := r.reg.Get(h.ID)
	if err != nil {
		return r.finish(log, res, start, err)
	}
	res.HandleID = h.ID

	rows, err := dataset.ReadMatrix(transformedPath, fitted.OutputWidth())
	if err != nil {
		return r.finish(log, res, start, err)
	}

	column := h.Schema.Column
	if column == "" {
		column = r.cfg.Column
	}
	out := layout.InversePath(r.cfg.OutputDir, transformedPath)
	outcome, err := r.apply(ctx, res.Operation, rows, fitted.InverseTransform, out, []string{column})
	res.ChunkCount = outcome.Chunks
	if err != nil {
		return r.finish(log, res, start, err)
	}
	res.InverseOutputPath = out
	res.RowCount = outcome.RowsOut
	res.SkippedChunks = outcome.Skipped
	res.Message = message("Inverse transformation", outcome)
	return r.finish(log, res, start, nil)
}

// loader serves the training rows from the already parsed column; the
// sample policy keeps only the leading rows.
func (r *Runner) loader(rows [][]float64) registry.Loader {
	return func(context.Context) (registry.TrainingSet, error) {
		ts := registry.TrainingSet{Rows: rows, Column: r.cfg.Column, Policy: r.cfg.FitPolicy}
		if r.cfg.FitPolicy == registry.FitSample && r.cfg.SampleRows > 0 && len(rows) > r.cfg.SampleRows {
			ts.Rows = rows[:r.cfg.SampleRows]
		}
		return ts, nil
	}
}

type rowFunc func(ctx context.Context, rows [][]float64) ([][]float64, error)

// apply runs fn over rows on the chunk engine and writes header plus
// output to path. Nothing is left at path when it fails.
func (r *Runner) apply(ctx context.Context, op string, rows [][]float64, fn rowFunc, path string, header []string) (chunk.Outcome, error) {
	mapFn := func(ctx context.Context, c chunk.Chunk[[]float64]) ([][]float64, error) {
		return fn(ctx, c.Rows)
	}
	opts := chunk.Options[[]float64]{
		Name:       op,
		ChunkSize:  r.cfg.ChunkSize,
		MaxWorkers: r.cfg.MaxWorkers,
		Timeout:    r.cfg.Timeout,
		Policy:     r.cfg.Assembly,
		OnError:    r.cfg.OnError,
	}

	if opts.Policy == chunk.Stream {
		app, err := dataset.NewAppender(path, header)
		if err != nil {
			return chunk.Outcome{}, err
		}
		opts.Sink = appender{app}
		_, outcome, err := chunk.Map(ctx, rows, mapFn, opts)
		if err != nil {
			app.Abort()
			return outcome, err
		}
		return outcome, app.Commit()
	}

	out, outcome, err := chunk.Map(ctx, rows, mapFn, opts)
	if err != nil {
		return outcome, err
	}
	return outcome, dataset.WriteFile(path, header, out)
}

// appender feeds stream-assembled chunks to a dataset.Appender in
// completion order.
type appender struct{ a *dataset.Appender }

func (s appender) Append(c chunk.Chunk[[]float64]) error { return s.a.Append(c.Rows) }

func message(what string, o chunk.Outcome) string {
	msg := what + " completed successfully"
	if n := len(o.Skipped); n > 0 {
		msg += fmt.Sprintf(" (%d chunk(s) skipped)", n)
	}
	if o.Policy == chunk.Stream {
		msg += " (row order not preserved)"
	}
	return msg
}

// finish stamps the envelope, records telemetry and publishes it to every
// sink. Sink failures are logged only.
func (r *Runner) finish(log *slog.Logger, res job.Result, start time.Time, err error) (job.Result, error) {
	elapsed := time.Since(start)
	res.ElapsedSeconds = elapsed.Seconds()
	res.FinishedAt = time.Now().UTC()

	if err != nil {
		res.Status = job.StatusError
		res.Message = err.Error()
		res.OutputPath, res.InverseOutputPath = "", ""
		log.Error("job failed", "fault", job.Classify(err).String(), "err", err, "elapsed", elapsed)
	} else {
		res.Status = job.StatusSuccess
		log.Info("job done", "rows", res.RowCount, "chunks", res.ChunkCount, "handle", res.HandleID, "elapsed", elapsed)
	}
	telemetry.Jobs.WithLabelValues(res.Operation, string(res.Status)).Inc()
	telemetry.JobDuration.WithLabelValues(res.Operation).Observe(elapsed.Seconds())

	for _, s := range r.sinks {
		if perr := s.Push(res); perr != nil {
			log.Warn("sink push failed", "err", perr)
		}
	}
	return res, err
}
