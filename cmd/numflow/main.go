package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"numflow/internal/config"
	"numflow/internal/engine"
	"numflow/internal/logging"
	"numflow/source"
)

func main() {
	cfgPath := flag.String("config", "numflow.yml", "path to the YAML config (optional)")
	flag.Parse()

	logging.InitFromEnv()
	log := logging.L()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	source.Register(source.SchemeDrive, func() source.Adapter { return &source.DriveDriver{} })
	source.Register(source.SchemeS3, func() source.Adapter { return &source.S3Driver{} })

	e, err := engine.Bootstrap(ctx, cfg)
	if err != nil {
		log.Error("bootstrap", "err", err)
		os.Exit(1)
	}

	if err := e.Run(ctx); err != nil {
		logging.L().Error("engine", "err", err)
		os.Exit(1)
	}
}
