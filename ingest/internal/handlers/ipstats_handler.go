package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/accesslog/common/httputil"
	"github.com/telhawk-systems/accesslog/common/ipstats"
	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/ipaddr"
)

// StatsReader reads per-client usage statistics.
type StatsReader interface {
	GetStats(ctx context.Context, ip string) (*ipstats.Stats, error)
	ActiveIPs(ctx context.Context) ([]string, error)
}

type IPStatsHandler struct {
	stats  StatsReader
	logger *slog.Logger
}

func NewIPStatsHandler(stats StatsReader, logger *slog.Logger) *IPStatsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IPStatsHandler{stats: stats, logger: logger}
}

// Stats handles GET /ip/stats?ip=. Without ip it reports the caller.
func (h *IPStatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = ipaddr.ClientIP(r)
	}
	addr := ipaddr.Classify(ip)
	if addr.Address == "" {
		httputil.WriteFailure(w, http.StatusBadRequest, "ip query parameter is required")
		return
	}

	stats, err := h.stats.GetStats(r.Context(), addr.Address)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to read ip stats", logging.IP(addr.Address), logging.Error(err))
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "ip stats unavailable")
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "ip stats retrieved", stats)
}

// Active handles GET /ip/active: client IPs seen today.
func (h *IPStatsHandler) Active(w http.ResponseWriter, r *http.Request) {
	ips, err := h.stats.ActiveIPs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list active ips", logging.Error(err))
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "ip stats unavailable")
		return
	}
	if ips == nil {
		ips = []string{}
	}
	httputil.WriteSuccess(w, http.StatusOK, "active client IPs retrieved", ips)
}
