package pipeline

import (
	"fmt"

	"numflow/internal/chunk"
	"numflow/internal/config"
	"numflow/internal/registry"
	"numflow/internal/spec"
	"numflow/sink"
	"numflow/sink/kafka"
	"numflow/sink/stdout"
	"numflow/source"
)

// Compile loads the configuration at path (missing file means defaults
// plus environment) and builds a ready Runner.
func Compile(path string) (*Runner, spec.File, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, cfg, err
	}
	r, err := Build(cfg)
	return r, cfg, err
}

// Build wires fetcher, registry and sinks from an already validated
// configuration.
func Build(cfg spec.File) (*Runner, error) {
	f, err := source.NewFetcher(source.ConfigFrom(cfg))
	if err != nil {
		return nil, err
	}

	var store registry.Store
	if cfg.Registry.Persist {
		fs, err := registry.NewFileStore(cfg.Registry.Dir)
		if err != nil {
			return nil, err
		}
		store = fs
	}
	reg, err := registry.New(registry.Options{
		Encoder: cfg.Encoder.Kind,
		Modes:   cfg.Encoder.Modes,
		Store:   store,
	})
	if err != nil {
		return nil, err
	}

	r := NewRunner(RunnerConfig(cfg), f, reg)
	for _, name := range cfg.Sinks {
		sDrv, err := sink.NewAdapter(name)
		if err != nil {
			_ = r.Close()
			return nil, err
		}

		switch name {
		case "stdout":
			err = sDrv.Configure(stdout.Config{PrintCounter: true, JSON: cfg.Log.JSON})
		case "kafka":
			err = sDrv.Configure(kafka.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   cfg.Kafka.Topic,
				Acks:    cfg.Kafka.Acks,
			})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			_ = r.Close()
			return nil, fmt.Errorf("sink %s: %w", name, err)
		}
		r.AddSink(sDrv)
	}
	return r, nil
}

// RunnerConfig projects the service configuration onto the runner.
func RunnerConfig(cfg spec.File) Config {
	return Config{
		OutputDir:  cfg.DownloadDir,
		Column:     cfg.Column,
		ChunkSize:  cfg.ChunkSize,
		MaxWorkers: cfg.MaxWorkers,
		Timeout:    config.Timeout(cfg),
		Assembly:   chunk.Policy(cfg.Assembly),
		OnError:    chunk.OnError(cfg.OnChunkError),
		FitPolicy:  cfg.Fit.Policy,
		SampleRows: cfg.Fit.SampleRows,
	}
}
