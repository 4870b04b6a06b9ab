package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/telhawk-systems/accesslog/common/httputil"
	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/ipaddr"
	"github.com/telhawk-systems/accesslog/ingest/internal/metrics"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
	"github.com/telhawk-systems/accesslog/ingest/internal/ratelimit"
	"github.com/telhawk-systems/accesslog/ingest/internal/service"
)

// Capturer records accesses; satisfied by AccessLogService.
type Capturer interface {
	LogAccess(a service.Access) models.EventRecord
}

// CaptureAll enqueues every request as an access event before serving it.
// Requests whose path equals or falls under one of skip are not recorded.
func CaptureAll(c Capturer, skip ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !skipped(r.URL.Path, skip) {
				c.LogAccess(service.Access{
					ClientIP:  ipaddr.ClientIP(r),
					Path:      r.URL.RequestURI(),
					Method:    r.Method,
					UserAgent: r.UserAgent(),
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}

func skipped(path string, skip []string) bool {
	for _, s := range skip {
		if path == s || strings.HasPrefix(path, strings.TrimSuffix(s, "/")+"/") {
			return true
		}
	}
	return false
}

// RateLimit rejects callers over their per-IP budget with 429. Limiter
// errors let the request through. fallback is the Retry-After used when the
// limiter cannot say when the window frees up.
func RateLimit(limiter ratelimit.Limiter, fallback time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ipaddr.Classify(ipaddr.ClientIP(r)).Address
			d, err := limiter.Allow(r.Context(), ip)
			if err != nil {
				logger.WarnContext(r.Context(), "rate limit check failed, allowing request",
					logging.IP(ip), logging.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if d.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			}
			if !d.Allowed {
				wait := d.RetryAfter
				if wait <= 0 {
					wait = fallback
				}
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
				httputil.WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds rounds up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	return max(int((d+time.Second-1)/time.Second), 1)
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Instrument counts requests per endpoint and status and logs them at
// debug level.
func Instrument(endpoint string, logger *slog.Logger, next http.HandlerFunc) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)

		metrics.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		logger.DebugContext(r.Context(), "request served",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(rec.status),
			logging.Duration(time.Since(start)),
		)
	}
}
