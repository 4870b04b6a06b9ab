package handlers

import (
	"log/slog"
	"net/http"

	"github.com/telhawk-systems/accesslog/common/httputil"
	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/dlq"
)

// DLQHandler exposes the dead-letter queue to operators.
type DLQHandler struct {
	queue  dlq.DeadLetterQueue
	logger *slog.Logger
}

// NewDLQHandler returns a handler; a nil queue reports the DLQ as disabled.
func NewDLQHandler(queue dlq.DeadLetterQueue, logger *slog.Logger) *DLQHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DLQHandler{queue: queue, logger: logger}
}

func (h *DLQHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"enabled": false})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.queue.Stats(r.Context()))
}

func (h *DLQHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httputil.WriteError(w, http.StatusNotFound, dlq.ErrNotEnabled.Error())
		return
	}

	limit, err := httputil.NonNegativeParam(r, "limit")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	batches, err := h.queue.List(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list dlq", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list dlq")
		return
	}
	if batches == nil {
		batches = []dlq.FailedBatch{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"batches": batches, "count": len(batches)})
}

func (h *DLQHandler) Purge(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		httputil.WriteError(w, http.StatusNotFound, dlq.ErrNotEnabled.Error())
		return
	}
	if err := h.queue.Purge(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to purge dlq", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "failed to purge dlq")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
