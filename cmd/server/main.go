package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"tracechain/internal/handler"
	"tracechain/internal/platform/config"
	"tracechain/internal/platform/httpserver"
	"tracechain/internal/platform/logger"
	"tracechain/internal/platform/metrics"
	"tracechain/internal/platform/middleware"
	ratelimit "tracechain/internal/ratelimit/middleware"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	svc, err := buildServices(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer svc.close()

	router := newRouter(cfg, svc, registry, log)
	srv := httpserver.New(cfg.HTTP, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting tracechain", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func newRouter(cfg config.Server, svc *services, registry *prometheus.Registry, log *slog.Logger) http.Handler {
	var resolver middleware.CallerResolver = middleware.HeaderResolver{}
	if cfg.JWTSigningKey != "" {
		resolver = middleware.NewJWTResolver(cfg.JWTSigningKey, cfg.JWTIssuer)
	} else {
		log.Warn("no JWT signing key configured; trusting the " + middleware.CallerHeader + " header")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(log))

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if err := svc.ready(req.Context()); err != nil {
			log.WarnContext(req.Context(), "readiness check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	h := handler.New(svc.identity, svc.catalog, svc.ledger, svc.transfers, svc.events, log)
	limits := ratelimit.New(svc.limiter, log, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireCaller(resolver, log))
		r.Use(limits.PerCaller)
		h.Register(r)
	})
	return r
}
