package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stepseq/internal/blob"
	"stepseq/internal/config"
	"stepseq/internal/core"
	"stepseq/internal/samples"
	"stepseq/pkg/domain"
)

// app bundles the collaborators shared by every command.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  core.PersistentStore
	svc    *core.Service
	files  *samples.Library

	metricsSrv *http.Server
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openApp wires storage, blobs and the session, then loads the configured
// project.
func openApp(ctx context.Context, cfg config.Config, logw io.Writer) (*app, error) {
	logger := newLogger(logw, cfg.Log)
	store, err := core.OpenPersistentStore(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Blob.Driver, err)
	}
	files, err := samples.New(blobs, samples.DefaultCacheSize)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store, files: files}

	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithSyncInterval(cfg.Sync.Interval),
		core.WithMaxBackoff(cfg.Sync.MaxBackoff),
	}
	recorder, err := a.metrics()
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	if recorder != nil {
		opts = append(opts, core.WithMetricsRecorder(recorder))
	}
	a.svc = core.NewService(store, opts...)
	if err := a.svc.Load(ctx, domain.ID(cfg.Project)); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("load project %s: %w", cfg.Project, err)
	}
	logger.Debug("session ready", "project", cfg.Project, "storage", cfg.Storage.Driver, "blob", cfg.Blob.Driver)
	return a, nil
}

// metrics builds the configured recorder. The HTTP endpoint is started later
// by serveMetrics so one-shot commands never bind a port.
func (a *app) metrics() (core.MetricsRecorder, error) {
	switch a.cfg.Metrics.Driver {
	case "expvar":
		return core.NewExpvarMetricsRecorder(""), nil
	case "prometheus":
		reg := prometheus.NewRegistry()
		rec, err := core.NewPrometheusMetricsRecorder(reg, "stepseq")
		if err != nil {
			return nil, err
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		a.metricsSrv = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		return rec, nil
	}
	return nil, nil
}

// serveMetrics starts the metrics endpoint in the background.
func (a *app) serveMetrics() {
	if a.cfg.Metrics.Driver == "expvar" {
		mux := http.NewServeMux()
		mux.Handle("/debug/vars", expvar.Handler())
		a.metricsSrv = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	}
	if a.metricsSrv == nil {
		return
	}
	ln, err := net.Listen("tcp", a.metricsSrv.Addr)
	if err != nil {
		a.logger.Warn("metrics endpoint disabled", "addr", a.metricsSrv.Addr, "error", err)
		a.metricsSrv = nil
		return
	}
	a.logger.Info("serving metrics", "addr", ln.Addr().String(), "driver", a.cfg.Metrics.Driver)
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics endpoint stopped", "error", err)
		}
	}(a.metricsSrv)
}

// Close flushes queued edits and releases the store.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.svc != nil {
		if err := a.svc.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final sync: %w", err))
		}
	}
	if a.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errs = append(errs, a.metricsSrv.Shutdown(shutdownCtx))
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}
