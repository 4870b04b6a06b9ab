package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/accesslog/common/middleware"
	"github.com/telhawk-systems/accesslog/ingest/internal/handlers"
	"github.com/telhawk-systems/accesslog/ingest/internal/ratelimit"
)

// Options wires handlers and optional middleware into the router.
type Options struct {
	Access *handlers.AccessHandler
	Health *handlers.HealthHandler
	DLQ    *handlers.DLQHandler
	Stats  *handlers.IPStatsHandler

	// Capture, when set, records every request except health, metrics,
	// DLQ and /ip/my (which records itself).
	Capture handlers.Capturer

	// Limiter, when set, throttles the /ip endpoints per client IP.
	Limiter         ratelimit.Limiter
	RateLimitWindow time.Duration

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string

	Logger *slog.Logger
}

// NewRouter constructs a ServeMux with ingest API routes registered.
func NewRouter(opts Options) http.Handler {
	mux := http.NewServeMux()

	ip := func(endpoint string, h http.HandlerFunc) http.Handler {
		var handler http.Handler = handlers.Instrument(endpoint, opts.Logger, h)
		if opts.Limiter != nil {
			handler = handlers.RateLimit(opts.Limiter, opts.RateLimitWindow, opts.Logger)(handler)
		}
		return handler
	}

	// Access log endpoints
	mux.Handle("GET /ip/my", ip("my", opts.Access.MyIP))
	mux.Handle("GET /ip/get-all-logs", ip("get_all_logs", opts.Access.AllLogs))
	mux.Handle("GET /ip/get-logs-by-ip", ip("get_logs_by_ip", opts.Access.LogsByIP))
	mux.Handle("GET /ip/status", ip("status", opts.Access.Status))

	// Per-client usage stats
	if opts.Stats != nil {
		mux.Handle("GET /ip/stats", ip("stats", opts.Stats.Stats))
		mux.Handle("GET /ip/active", ip("active", opts.Stats.Active))
	}

	// Dead-letter queue
	if opts.DLQ != nil {
		mux.HandleFunc("GET /dlq", opts.DLQ.List)
		mux.HandleFunc("GET /dlq/stats", opts.DLQ.Stats)
		mux.HandleFunc("DELETE /dlq", opts.DLQ.Purge)
	}

	// Health endpoints
	mux.HandleFunc("GET /healthz", opts.Health.Health)
	mux.HandleFunc("GET /readyz", opts.Health.Ready)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	var handler http.Handler = mux
	if opts.Capture != nil {
		handler = handlers.CaptureAll(opts.Capture, "/healthz", "/readyz", "/metrics", "/dlq", "/ip/my")(handler)
	}
	if len(opts.CORSOrigins) > 0 {
		handler = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: opts.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader, "Retry-After"},
			MaxAge:         600,
		})(handler)
	}
	return middleware.RequestID(handler)
}
