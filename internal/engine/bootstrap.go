package engine

import (
	"context"
	"fmt"

	"numflow/internal/api"
	"numflow/internal/logging"
	"numflow/internal/pipeline"
	"numflow/internal/spec"
	"numflow/internal/telemetry"
	"numflow/internal/transport"
)

// Bootstrap wires the pipeline behind both transports. Source drivers must
// be registered before it is called.
func Bootstrap(ctx context.Context, cfg spec.File) (*Engine, error) {
	// 1. logging first so every component picks up the configured handler
	logging.Configure(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, Service: cfg.Log.Service})
	log := logging.With("engine")

	// 2. pipeline runner
	runner, err := pipeline.Build(cfg)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 3. transport servers
	srv, err := transport.StartServer(cfg.Server.GRPCPort, runner)
	if err != nil {
		_ = runner.Close()
		return nil, fmt.Errorf("transport: %w", err)
	}
	httpSrv := api.NewServer(cfg.Server.HTTPAddr, runner)

	// 4. metrics
	e := &Engine{transport: srv, http: httpSrv, runner: runner}
	if cfg.Server.MetricsPort > 0 {
		e.metrics = telemetry.Expose(cfg.Server.MetricsPort)
	}

	log.Info("engine ready",
		"grpc", srv.Addr().String(),
		"http", cfg.Server.HTTPAddr,
		"metrics_port", cfg.Server.MetricsPort,
		"download_dir", cfg.DownloadDir,
		"max_workers", cfg.MaxWorkers,
		"chunk_size", cfg.ChunkSize,
		"assembly", cfg.Assembly,
		"encoder", cfg.Encoder.Kind,
		"restored_handles", len(runner.Registry().Handles()))
	return e, nil
}
