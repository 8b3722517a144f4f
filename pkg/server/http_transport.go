package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/osmplot/pkg/core"
	"github.com/NERVsystems/osmplot/pkg/monitoring"
)

// HTTPTransportConfig configures the HTTP+SSE transport
type HTTPTransportConfig struct {
	Addr           string  `yaml:"addr"`
	BaseURL        string  `yaml:"base_url"`
	AuthToken      string  `yaml:"auth_token"` // bearer token; empty disables auth
	SSEEndpoint    string  `yaml:"sse_endpoint"`
	MsgEndpoint    string  `yaml:"msg_endpoint"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second per IP, 0 disables
	RateBurst      int     `yaml:"rate_burst"`
	MaxRequestSize int64   `yaml:"max_request_size"`
	TLSCertFile    string  `yaml:"tls_cert_file"`
	TLSKeyFile     string  `yaml:"tls_key_file"`
}

// DefaultHTTPTransportConfig returns the defaults used by osmplot serve
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		SSEEndpoint:    "/sse",
		MsgEndpoint:    "/message",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20,
	}
}

// HTTPTransport serves MCP over SSE next to the health, metrics and JSON
// API endpoints
type HTTPTransport struct {
	config      HTTPTransportConfig
	logger      *slog.Logger
	sseServer   *mcpserver.SSEServer
	api         *APIHandler
	health      *monitoring.HealthChecker
	rateLimiter *RateLimiter
	handler     http.Handler

	mu      sync.Mutex
	httpSrv *http.Server
}

// NewHTTPTransport builds the transport for srv. health may be nil, in
// which case /health and /ready always report ok.
func NewHTTPTransport(srv *Server, health *monitoring.HealthChecker, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")

	if config.AuthToken != "" {
		if err := ValidateAuthToken(config.AuthToken); err != nil {
			logger.Warn("weak authentication token", "error", err)
		}
	}

	t := &HTTPTransport{
		config: config,
		logger: logger,
		sseServer: mcpserver.NewSSEServer(
			srv.MCPServer(),
			mcpserver.WithSSEEndpoint(config.SSEEndpoint),
			mcpserver.WithMessageEndpoint(config.MsgEndpoint),
			mcpserver.WithBaseURL(config.BaseURL),
		),
		api:    NewAPIHandler(srv.Registry(), logger),
		health: health,
	}
	if config.RateLimit > 0 {
		t.rateLimiter = NewRateLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	t.handler = t.routes()
	return t
}

// Handler returns the complete middleware-wrapped handler
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler
}

func (t *HTTPTransport) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", t.handleDiscovery)
	mux.HandleFunc("GET /health", t.handleHealth)
	mux.HandleFunc("GET /ready", t.handleReady)
	mux.HandleFunc("GET /live", t.handleLive)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.Handle(t.config.SSEEndpoint, t.protect(t.sseServer.SSEHandler()))
	mux.Handle(t.config.MsgEndpoint, t.protect(t.sseServer.MessageHandler()))
	mux.Handle("/api/", t.protect(t.api))

	var h http.Handler = mux
	h = TracingMiddleware()(h)
	h = LoggingMiddleware(t.logger)(h)
	h = SecurityHeaders(h)
	if t.config.MaxRequestSize > 0 {
		h = RequestSizeLimiter(t.config.MaxRequestSize)(h)
	}
	return h
}

// protect applies rate limiting and bearer auth to the MCP and API routes
func (t *HTTPTransport) protect(next http.Handler) http.Handler {
	h := t.authMiddleware(next)
	if t.rateLimiter != nil {
		h = t.rateLimiter.Middleware(h)
	}
	return h
}

func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	if t.config.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !authorized(r.Header.Get("Authorization"), t.config.AuthToken) {
			t.logger.Warn("authentication failed",
				"remote_addr", clientIP(r),
				"path", r.URL.Path,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="osmplot"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"jsonrpc": "2.0",
				"id":      nil,
				"error":   map[string]any{"code": -32001, "message": "authentication required"},
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (t *HTTPTransport) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = scheme + "://" + r.Host
	}

	t.writeJSON(w, http.StatusOK, map[string]any{
		"service":   ServerName,
		"transport": "HTTP+SSE",
		"endpoints": map[string]string{
			"sse":     baseURL + t.config.SSEEndpoint,
			"message": baseURL + t.config.MsgEndpoint,
			"api":     baseURL + "/api/tools",
			"metrics": baseURL + "/metrics",
		},
		"auth": map[string]bool{"required": t.config.AuthToken != ""},
	})
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if t.health == nil {
		t.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		return
	}
	t.health.HealthHandler()(w, r)
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if t.health == nil {
		t.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "status": "healthy"})
		return
	}
	t.health.ReadinessHandler()(w, r)
}

func (t *HTTPTransport) handleLive(w http.ResponseWriter, _ *http.Request) {
	t.writeJSON(w, http.StatusOK, map[string]bool{"alive": true})
}

func (t *HTTPTransport) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.logger.Error("failed to encode response", "error", err)
	}
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("Stop the running transport before starting it again.")
	}
	srv := &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	t.httpSrv = srv
	t.mu.Unlock()

	tls := t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"sse_endpoint", t.config.SSEEndpoint,
		"message_endpoint", t.config.MsgEndpoint,
		"auth", t.config.AuthToken != "",
		"tls", tls,
	)
	if tls {
		return srv.ListenAndServeTLS(t.config.TLSCertFile, t.config.TLSKeyFile)
	}
	return srv.ListenAndServe()
}

// Shutdown closes SSE sessions, then stops the HTTP server
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	srv := t.httpSrv
	t.httpSrv = nil
	t.mu.Unlock()

	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
	}
	if srv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")
	if err := t.sseServer.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shut down SSE server", "error", err)
	}
	return srv.Shutdown(ctx)
}
