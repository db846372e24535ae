package chunk

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"numflow/internal/logging"
	"numflow/internal/telemetry"
)

// Func transforms the rows of one chunk. It must honour ctx, which carries
// the per-chunk deadline.
type Func[T, R any] func(ctx context.Context, c Chunk[T]) ([]R, error)

// Appender receives completed chunks under the Stream policy. Append is
// never called concurrently.
type Appender[R any] interface {
	Append(c Chunk[R]) error
}

type Options[R any] struct {
	Name       string // operation label for logs and metrics
	ChunkSize  int
	MaxWorkers int
	Timeout    time.Duration // per chunk, 0 = none
	Policy     Policy
	OnError    OnError
	Sink       Appender[R] // required for Stream
}

func (o *Options[R]) normalize() error {
	if o.ChunkSize < 1 {
		return fmt.Errorf("chunk: chunk size must be >= 1, got %d", o.ChunkSize)
	}
	if o.MaxWorkers < 1 {
		return fmt.Errorf("chunk: max workers must be >= 1, got %d", o.MaxWorkers)
	}
	if o.Policy == "" {
		o.Policy = Gather
	}
	if o.OnError == "" {
		o.OnError = Abort
	}
	if o.Name == "" {
		o.Name = "map"
	}
	switch o.Policy {
	case Gather:
	case Stream:
		if o.Sink == nil {
			return errors.New("chunk: stream policy needs a sink")
		}
	default:
		return fmt.Errorf("chunk: unknown policy %q", o.Policy)
	}
	if o.OnError != Abort && o.OnError != Skip {
		return fmt.Errorf("chunk: unknown error policy %q", o.OnError)
	}
	return nil
}

// Map splits rows into chunks and applies fn with at most MaxWorkers
// chunks in flight. Under Gather it returns the concatenated output in
// input order; under Stream the output goes to Options.Sink and the
// returned slice is nil.
//
// A failed chunk never interrupts chunks already running. Under Abort it
// stops chunks that have not started and Map returns a *ProcessingError;
// under Skip the chunk is listed in Outcome.Skipped and left out. Chunks
// that never ran always fail the call.
func Map[T, R any](ctx context.Context, rows []T, fn Func[T, R], opts Options[R]) ([]R, Outcome, error) {
	if err := opts.normalize(); err != nil {
		return nil, Outcome{}, err
	}
	began := time.Now()
	chunks := Split(rows, opts.ChunkSize)
	out := Outcome{Policy: opts.Policy, Chunks: len(chunks), RowsIn: len(rows)}
	log := logging.With("chunk").With("op", opts.Name)

	jobCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	var (
		mu       sync.Mutex
		failures []Failure
		results  = make([][]R, len(chunks))
		done     = make([]bool, len(chunks))
	)
	fail := func(c Chunk[T], err error) {
		log.Error("chunk failed", "ordinal", c.Ordinal, "offset", c.Offset, "rows", len(c.Rows), "err", err)
		telemetry.Chunks.WithLabelValues(opts.Name, "failed").Inc()
		mu.Lock()
		failures = append(failures, Failure{Ordinal: c.Ordinal, Offset: c.Offset, Rows: len(c.Rows), Err: err})
		mu.Unlock()
		if opts.OnError == Abort {
			abort(err)
		}
	}

	// Stream: one writer goroutine owns the sink.
	var (
		completed chan Chunk[R]
		writerErr error
		writerWG  sync.WaitGroup
	)
	if opts.Policy == Stream {
		completed = make(chan Chunk[R], opts.MaxWorkers)
		writerWG.Add(1)
		go func() {
			defer writerWG.Done()
			for c := range completed {
				if writerErr != nil {
					continue
				}
				if err := opts.Sink.Append(c); err != nil {
					writerErr = fmt.Errorf("chunk: append %d: %w", c.Ordinal, err)
					abort(writerErr)
					continue
				}
				mu.Lock()
				out.RowsOut += len(c.Rows)
				mu.Unlock()
			}
		}()
	}

	g := new(errgroup.Group)
	g.SetLimit(opts.MaxWorkers)
	for _, c := range chunks {
		if jobCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if jobCtx.Err() != nil {
				return nil
			}
			start := time.Now()
			telemetry.ChunksInFlight.Inc()
			res, err := runOne(ctx, c, fn, opts.Timeout)
			telemetry.ChunksInFlight.Dec()
			telemetry.ChunkDuration.WithLabelValues(opts.Name).Observe(time.Since(start).Seconds())
			if err != nil {
				fail(c, err)
				return nil
			}
			telemetry.Chunks.WithLabelValues(opts.Name, "ok").Inc()
			log.Debug("chunk processed", "ordinal", c.Ordinal, "rows", len(res))
			mu.Lock()
			done[c.Ordinal] = true
			if opts.Policy == Gather {
				results[c.Ordinal] = res
			}
			mu.Unlock()
			if completed != nil {
				completed <- Chunk[R]{Ordinal: c.Ordinal, Offset: c.Offset, Rows: res}
			}
			return nil
		})
	}
	_ = g.Wait()
	if completed != nil {
		close(completed)
		writerWG.Wait()
	}

	sortFailures(failures)
	out.Failures = failures
	failed := make(map[int]bool, len(failures))
	for _, f := range failures {
		failed[f.Ordinal] = true
	}
	for i := range chunks {
		if !done[i] && !failed[i] {
			out.Cancelled = append(out.Cancelled, i)
		}
	}
	if n := len(out.Cancelled); n > 0 {
		telemetry.Chunks.WithLabelValues(opts.Name, "cancelled").Add(float64(n))
	}
	out.Elapsed = time.Since(began)

	if writerErr != nil {
		return nil, out, writerErr
	}
	// A caller cancellation fails the job under either error policy; Skip
	// only covers chunks that failed on their own.
	if err := context.Cause(ctx); err != nil && (len(out.Cancelled) > 0 || len(failures) > 0) {
		return nil, out, err
	}
	if len(failures) > 0 && opts.OnError == Abort {
		return nil, out, &ProcessingError{Failures: failures, Cancelled: len(out.Cancelled)}
	}
	if len(out.Cancelled) > 0 {
		return nil, out, &ProcessingError{Failures: failures, Cancelled: len(out.Cancelled)}
	}
	for _, f := range failures {
		out.Skipped = append(out.Skipped, f.Ordinal)
	}
	sort.Ints(out.Skipped)

	if opts.Policy == Stream {
		return nil, out, nil
	}
	total := 0
	for _, r := range results {
		total += len(r)
	}
	merged := make([]R, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	out.RowsOut = len(merged)
	return merged, out, nil
}

// runOne applies fn to one chunk under the per-chunk deadline and turns a
// panic into an error.
func runOne[T, R any](ctx context.Context, c Chunk[T], fn Func[T, R], timeout time.Duration) (res []R, err error) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", errPanic, r)
		}
	}()
	res, err = fn(cctx, c)
	if err == nil && cctx.Err() != nil {
		err = cctx.Err()
	}
	return res, err
}
