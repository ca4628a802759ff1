package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mudler/xlog"
	"github.com/nvr-ai/go-detect/dispatch"
	"github.com/nvr-ai/go-detect/server"
	"github.com/nvr-ai/go-detect/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ServeCmd runs the HTTP API.
type ServeCmd struct {
	Listen string `env:"DETECT_LISTEN" help:"Listen address, overrides server.listen"`
}

// Run starts the server and blocks until it is interrupted.
func (s *ServeCmd) Run(g *Globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if s.Listen != "" {
		cfg.Server.Listen = s.Listen
	}

	db, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics, err := dispatch.NewMetrics(reg)
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(dispatch.NewRegistry(cfg.Backends(), nil), dispatch.WithMetrics(metrics))
	e := server.New(dispatch.NewService(dispatcher, db), db, server.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Gatherer:       reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		xlog.Info("Listening", "address", cfg.Server.Listen)
		if err := e.Start(cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	xlog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
