// Package registry is the process-wide home of fitted encoders. An encoder
// is fitted at most once per dataset identity; afterwards it is only read.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"numflow/internal/encoder"
	"numflow/internal/logging"
	"numflow/internal/telemetry"
)

// TrainingSet is what a Loader hands to the fit.
type TrainingSet struct {
	Rows   [][]float64
	Column string
	Policy string // FitSample or FitFull
}

// Loader produces training rows. It runs only when a fit is needed.
type Loader func(ctx context.Context) (TrainingSet, error)

type Options struct {
	Encoder string // encoder kind, see package encoder
	Modes   int
	Store   Store // nil keeps fits in memory only
}

type entry struct {
	handle Handle
	enc    encoder.Encoder
}

type Registry struct {
	opts  Options
	group singleflight.Group
	fits  atomic.Int64

	mu      sync.RWMutex
	entries map[string]entry // by handle id
}

// New builds a registry and reloads every fit found in the store.
func New(opts Options) (*Registry, error) {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if _, err := encoder.New(opts.Encoder, opts.Modes); err != nil {
		return nil, err
	}
	r := &Registry{opts: opts, entries: map[string]entry{}}

	recs, err := opts.Store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("registry: load: %w", err)
	}
	for _, rec := range recs {
		enc, err := encoder.Restore(rec.Handle.Schema.Encoder, rec.State)
		if err != nil {
			return nil, fmt.Errorf("registry: handle %s: %w", rec.Handle.ID, err)
		}
		r.entries[rec.Handle.ID] = entry{handle: rec.Handle, enc: enc}
	}
	telemetry.RegistryHandles.Set(float64(len(r.entries)))
	if len(recs) > 0 {
		logging.With("registry").Info("restored fitted transformers", "count", len(recs))
	}
	return r, nil
}

// FitOrGet returns the handle for datasetID, fitting an encoder first if
// none exists. Concurrent callers for the same identity share a single
// fit; the loader of the caller that starts the fit is the one used.
// The shared fit is detached from that caller's cancellation: a caller
// that gives up returns ctx.Err() while the fit completes for the others.
func (r *Registry) FitOrGet(ctx context.Context, datasetID string, load Loader) (Handle, error) {
	id := HandleID(datasetID)
	if h, ok := r.lookup(id); ok {
		return h, nil
	}
	fitCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(id, func() (any, error) {
		// A fit may have completed between lookup and DoChan.
		if h, ok := r.lookup(id); ok {
			return h, nil
		}
		return r.fit(fitCtx, id, datasetID, load)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Handle{}, res.Err
		}
		return res.Val.(Handle), nil
	case <-ctx.Done():
		return Handle{}, ctx.Err()
	}
}

func (r *Registry) fit(ctx context.Context, id, datasetID string, load Loader) (Handle, error) {
	log := logging.With("registry").With("dataset", datasetID, "handle", id)

	ts, err := load(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("load training rows: %w", err)
	}
	enc, err := encoder.New(r.opts.Encoder, r.opts.Modes)
	if err != nil {
		return Handle{}, err
	}
	if err := enc.Fit(ts.Rows); err != nil {
		telemetry.EncoderFits.WithLabelValues(enc.Kind(), "error").Inc()
		return Handle{}, fmt.Errorf("fit %s encoder: %w", enc.Kind(), err)
	}
	state, err := enc.MarshalBinary()
	if err != nil {
		return Handle{}, err
	}
	h := Handle{
		ID:        id,
		DatasetID: datasetID,
		FittedAt:  time.Now().UTC(),
		Schema: Schema{
			Column:       ts.Column,
			InputWidth:   1,
			OutputWidth:  enc.OutputWidth(),
			Encoder:      enc.Kind(),
			FitPolicy:    ts.Policy,
			TrainingRows: len(ts.Rows),
		},
	}
	if err := r.opts.Store.Save(Record{Handle: h, State: state}); err != nil {
		telemetry.EncoderFits.WithLabelValues(enc.Kind(), "error").Inc()
		return Handle{}, err
	}

	r.mu.Lock()
	r.entries[id] = entry{handle: h, enc: enc}
	n := len(r.entries)
	r.mu.Unlock()

	r.fits.Add(1)
	telemetry.EncoderFits.WithLabelValues(enc.Kind(), "ok").Inc()
	telemetry.RegistryHandles.Set(float64(n))
	log.Info("transformer fitted", "encoder", enc.Kind(), "policy", ts.Policy, "rows", len(ts.Rows), "width", enc.OutputWidth())
	return h, nil
}

func (r *Registry) lookup(id string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	return e.handle, ok
}

// Get returns the fitted encoder behind a handle id.
func (r *Registry) Get(handleID string) (encoder.Fitted, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[handleID]
	if !ok {
		return nil, &NotFoundError{HandleID: handleID}
	}
	return fitted{e.enc}, nil
}

// fitted hides Fit and the marshalers from callers of Get.
type fitted struct{ encoder.Fitted }

// Resolve returns the handle fitted for a dataset identity.
func (r *Registry) Resolve(datasetID string) (Handle, error) {
	id := HandleID(datasetID)
	h, ok := r.lookup(id)
	if !ok {
		return Handle{}, &NotFoundError{HandleID: id, DatasetID: datasetID}
	}
	return h, nil
}

// Handles returns every handle ordered by id.
func (r *Registry) Handles() []Handle {
	r.mu.RLock()
	out := make([]Handle, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.handle)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Fits counts the fits this process has performed.
func (r *Registry) Fits() int64 { return r.fits.Load() }
