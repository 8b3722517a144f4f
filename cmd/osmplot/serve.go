package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/NERVsystems/osmplot/pkg/monitoring"
	"github.com/NERVsystems/osmplot/pkg/osm"
	"github.com/NERVsystems/osmplot/pkg/server"
	"github.com/NERVsystems/osmplot/pkg/tracing"
)

const (
	healthInterval  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	var (
		httpAddr    string
		httpOnly    bool
		authToken   string
		metricsAddr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio, optionally with the HTTP+SSE transport",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.Changed("http-addr") {
				a.cfg.Server.HTTPAddr = httpAddr
			}
			if flags.Changed("auth-token") {
				a.cfg.Server.AuthToken = authToken
			}
			if flags.Changed("metrics-addr") {
				a.cfg.Server.MetricsAddr = metricsAddr
			}
			if httpOnly && a.cfg.Server.HTTPAddr == "" {
				return errors.New("--http-only requires --http-addr")
			}
			return a.serve(cmd.Context(), httpOnly)
		},
	}
	f := cmd.Flags()
	f.StringVar(&httpAddr, "http-addr", "", "address for the HTTP+SSE transport; empty disables it")
	f.BoolVar(&httpOnly, "http-only", false, "serve HTTP only, without stdio")
	f.StringVar(&authToken, "auth-token", "", "bearer token required by the HTTP transport")
	f.StringVar(&metricsAddr, "metrics-addr", "", "address for /metrics when the HTTP transport is disabled")
	return cmd
}

// monitoringHooks reports upstream requests to the Prometheus metrics
func monitoringHooks() *osm.MonitoringHooks {
	return &osm.MonitoringHooks{
		OnResponse: func(service, operation string, d time.Duration, success bool) {
			monitoring.RecordExternalServiceRequest(service, operation, d, success)
		},
		OnRateLimit: monitoring.RecordRateLimitWait,
		OnError:     monitoring.RecordError,
	}
}

func (a *app) serve(ctx context.Context, httpOnly bool) error {
	logger := a.logger

	shutdownTracing, err := tracing.Init(ctx, a.cfg.Server.OTLPEndpoint, version)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if a.cfg.Server.OTLPEndpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", a.cfg.Server.OTLPEndpoint)
		}
	}

	overpass, taginfo := a.clients(monitoringHooks())
	srv := server.NewServer(a.registry(overpass, taginfo), version, logger)

	health := monitoring.NewHealthChecker(monitoring.ServiceName, version)
	go health.Monitor(ctx, tracing.ServiceOverpass, healthInterval, overpass.CheckHealth)

	logger.Info("starting osmplot server",
		"version", version,
		"overpass_url", a.cfg.Overpass.URL,
		"overpass_rps", a.cfg.Overpass.RateLimit,
		"tile_source", a.cfg.Render.TileSource,
		"http_addr", a.cfg.Server.HTTPAddr,
		"metrics_addr", a.cfg.Server.MetricsAddr,
	)

	if a.cfg.Server.HTTPAddr != "" {
		httpCfg := server.DefaultHTTPTransportConfig()
		httpCfg.Addr = a.cfg.Server.HTTPAddr
		httpCfg.AuthToken = a.cfg.Server.AuthToken
		transport := server.NewHTTPTransport(srv, health, httpCfg, logger)
		go func() {
			if err := transport.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP transport error", "error", err)
			}
		}()
		defer shutdown(logger, "HTTP transport", transport.Shutdown)
	} else if a.cfg.Server.MetricsAddr != "" {
		metrics := metricsServer(a.cfg.Server.MetricsAddr, health)
		go func() {
			logger.Info("starting Prometheus metrics server", "addr", metrics.Addr)
			if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer shutdown(logger, "metrics server", metrics.Shutdown)
	}

	if httpOnly {
		logger.Info("server ready", "transports", []string{"http"})
		<-ctx.Done()
		logger.Info("shutdown signal received")
		return nil
	}

	logger.Info("server ready", "transports", []string{"stdio"})
	if err := srv.RunWithContext(ctx); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func metricsServer(addr string, health *monitoring.HealthChecker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", health.HealthHandler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
	}
}

func shutdown(logger *slog.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Error("failed to shut down "+name, "error", err)
	}
}
