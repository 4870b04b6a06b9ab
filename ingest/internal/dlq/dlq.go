// Package dlq stores batches of access events the write-back pipeline gave
// up on, so an operator can inspect or replay them.
//
// Two backends exist: Queue writes one JSON file per batch (single instance,
// local development) and JetStreamQueue publishes to a NATS JetStream stream
// shared by every ingest instance.
package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
	"github.com/telhawk-systems/accesslog/ingest/internal/writeback"
)

// ErrNotEnabled is returned by read operations on a nil queue.
var ErrNotEnabled = errors.New("dlq not enabled")

// FailedBatch is one dead-lettered batch.
type FailedBatch struct {
	Timestamp time.Time            `json:"timestamp"`
	Reason    string               `json:"reason"`
	Error     string               `json:"error,omitempty"`
	Code      string               `json:"code,omitempty"`
	Count     int                  `json:"count"`
	Records   []models.EventRecord `json:"records"`
}

// DeadLetterQueue is the operator-facing side of a DLQ backend.
type DeadLetterQueue interface {
	writeback.DeadLetter
	Stats(ctx context.Context) map[string]any
	List(ctx context.Context, limit int) ([]FailedBatch, error)
	Purge(ctx context.Context) error
}

func newFailedBatch(records []models.EventRecord, reason string, cause error) FailedBatch {
	fb := FailedBatch{
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Count:     len(records),
		Records:   records,
	}
	if cause != nil {
		fb.Error = cause.Error()
		fb.Code = writeback.ErrorCode(cause)
	}
	return fb
}
