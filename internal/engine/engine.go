package engine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"numflow/internal/api"
	"numflow/internal/logging"
	"numflow/internal/pipeline"
	"numflow/internal/transport"
)

const shutdownGrace = 10 * time.Second

type Engine struct {
	transport *transport.Server
	http      *api.Server
	metrics   *http.Server
	runner    *pipeline.Runner
}

// Run serves until ctx is cancelled or a listener fails, then shuts every
// listener down and closes the sinks.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(e.transport.Serve)
	g.Go(e.http.Start)
	g.Go(func() error {
		<-gctx.Done()
		logging.With("engine").Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		e.transport.Stop()
		errs := []error{e.http.Shutdown(sctx)}
		if e.metrics != nil {
			errs = append(errs, e.metrics.Shutdown(sctx))
		}
		errs = append(errs, e.runner.Close())
		return errors.Join(errs...)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
