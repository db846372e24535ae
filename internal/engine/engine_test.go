package engine

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"numflow/internal/config"
	"numflow/internal/transport"
)

func TestBootstrapServeAndShutdown(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "none.yml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	dir := t.TempDir()
	cfg.DownloadDir = dir
	cfg.Registry.Dir = filepath.Join(dir, "registry")
	cfg.Server.GRPCPort = 0
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.MetricsPort = 0
	cfg.Sinks = nil

	ctx, cancel := context.WithCancel(context.Background())
	e, err := Bootstrap(ctx, cfg)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	_, port, err := net.SplitHostPort(e.transport.Addr().String())
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	c, err := transport.Dial(fmt.Sprintf("localhost:%s", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()

	hctx, hcancel := context.WithTimeout(ctx, 5*time.Second)
	defer hcancel()
	ok, err := c.Healthy(hctx)
	if err != nil || !ok {
		t.Fatalf("health: ok=%v err=%v", ok, err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("engine did not stop")
	}
}
