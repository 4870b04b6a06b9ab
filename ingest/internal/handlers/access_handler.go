package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/telhawk-systems/accesslog/common/httputil"
	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/ipaddr"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
	"github.com/telhawk-systems/accesslog/ingest/internal/service"
)

// AccessService is the service surface the HTTP layer needs.
type AccessService interface {
	LogAccess(a service.Access) models.EventRecord
	ListLogs(ctx context.Context, limit, offset int) ([]models.AccessLog, error)
	ListLogsByIP(ctx context.Context, ip string, limit, offset int) ([]models.AccessLog, error)
	Status() models.Status
}

// ClientInfo is the body returned by /ip/my.
type ClientInfo struct {
	ClientIP      string        `json:"clientIp"`
	IPType        models.IPType `json:"ipType"`
	RequestPath   string        `json:"requestPath"`
	RequestMethod string        `json:"requestMethod"`
	UserAgent     string        `json:"userAgent,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

type AccessHandler struct {
	service AccessService
	logger  *slog.Logger
}

func NewAccessHandler(svc AccessService, logger *slog.Logger) *AccessHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessHandler{service: svc, logger: logger}
}

// MyIP records the caller's access and echoes what was recorded.
func (h *AccessHandler) MyIP(w http.ResponseWriter, r *http.Request) {
	rec := h.service.LogAccess(service.Access{
		ClientIP:  ipaddr.ClientIP(r),
		Path:      r.URL.RequestURI(),
		Method:    r.Method,
		UserAgent: r.UserAgent(),
	})

	httputil.WriteSuccess(w, http.StatusOK, "client IP retrieved", ClientInfo{
		ClientIP:      rec.ClientIP,
		IPType:        rec.IPType,
		RequestPath:   rec.RequestPath,
		RequestMethod: rec.RequestMethod,
		UserAgent:     rec.UserAgent,
		Timestamp:     rec.ObservedAt,
	})
}

// AllLogs lists persisted records, newest first.
func (h *AccessHandler) AllLogs(w http.ResponseWriter, r *http.Request) {
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := h.service.ListLogs(r.Context(), page.Limit, page.Offset)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list access logs", logging.Error(err))
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "access logs unavailable")
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, "access logs retrieved", nonNil(logs))
}

// LogsByIP lists persisted records for the ip query parameter.
func (h *AccessHandler) LogsByIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		httputil.WriteFailure(w, http.StatusBadRequest, "ip query parameter is required")
		return
	}
	page, err := httputil.ParsePage(r)
	if err != nil {
		httputil.WriteFailure(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := h.service.ListLogsByIP(r.Context(), ip, page.Limit, page.Offset)
	switch {
	case errors.Is(err, service.ErrIPRequired):
		httputil.WriteFailure(w, http.StatusBadRequest, "ip query parameter is required")
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "failed to list access logs by ip", logging.IP(ip), logging.Error(err))
		httputil.WriteFailure(w, http.StatusServiceUnavailable, "access logs unavailable")
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, fmt.Sprintf("access logs for %s retrieved", ip), nonNil(logs))
}

// Status returns the pipeline snapshot as-is.
func (h *AccessHandler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.Status())
}

func nonNil(logs []models.AccessLog) []models.AccessLog {
	if logs == nil {
		return []models.AccessLog{}
	}
	return logs
}
