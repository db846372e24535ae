package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"numflow/internal/layout"
	"numflow/internal/logging"
	"numflow/internal/telemetry"
)

// Dataset is a fetched resource. It is never modified after Fetch returns.
type Dataset struct {
	Link string
	ID   string
	Path string
}

// Fetcher resolves links to local files with a bounded number of attempts.
// It holds no per-call state, so one Fetcher serves concurrent callers.
type Fetcher struct {
	cfg      Config
	adapters map[string]Adapter
}

// NewFetcher creates the download directory and configures every
// registered adapter.
func NewFetcher(cfg Config) (*Fetcher, error) {
	applyDefaults(&cfg)
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("source: create download dir: %w", err)
	}
	f := &Fetcher{cfg: cfg, adapters: map[string]Adapter{}}
	for _, scheme := range schemes() {
		a, err := NewAdapter(scheme)
		if err != nil {
			return nil, err
		}
		if err := a.Configure(cfg); err != nil {
			return nil, fmt.Errorf("source: configure %s: %w", scheme, err)
		}
		f.adapters[scheme] = a
	}
	return f, nil
}

// Dir is the download directory.
func (f *Fetcher) Dir() string { return f.cfg.Dir }

// Fetch downloads link to its deterministic path, making at most
// MaxRetries sequential attempts. The file appears at the final path only
// after a successful attempt.
func (f *Fetcher) Fetch(ctx context.Context, link string) (Dataset, error) {
	ref, err := Parse(link)
	if err != nil {
		return Dataset{}, err
	}
	a, ok := f.adapters[ref.Scheme]
	if !ok {
		return Dataset{}, &InvalidLinkError{Link: link, Reason: fmt.Sprintf("no driver for %s links", ref.Scheme)}
	}
	dst := layout.RawPath(f.cfg.Dir, ref.ID)
	log := logging.With("fetcher").With("link", link, "path", dst)

	var last error
	for attempt := 1; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 1 && f.cfg.Backoff > 0 {
			if err := sleep(ctx, f.cfg.Backoff); err != nil {
				return Dataset{}, &FetchError{Link: link, Attempts: attempt - 1, Cause: err}
			}
		}
		if err := ctx.Err(); err != nil {
			return Dataset{}, &FetchError{Link: link, Attempts: attempt - 1, Cause: err}
		}

		last = f.attempt(ctx, a, ref, dst)
		if last == nil {
			telemetry.FetchAttempts.WithLabelValues(ref.Scheme, "ok").Inc()
			log.Info("file downloaded", "attempt", attempt)
			return Dataset{Link: link, ID: ref.ID, Path: dst}, nil
		}
		telemetry.FetchAttempts.WithLabelValues(ref.Scheme, "error").Inc()
		if attempt < f.cfg.MaxRetries {
			log.Warn("download attempt failed, retrying", "attempt", attempt, "err", last)
		}
	}
	log.Error("download failed", "attempts", f.cfg.MaxRetries, "err", last)
	return Dataset{}, &FetchError{Link: link, Attempts: f.cfg.MaxRetries, Cause: last}
}

func (f *Fetcher) attempt(ctx context.Context, a Adapter, ref Ref, dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := a.Download(ctx, ref, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
