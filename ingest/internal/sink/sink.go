// Package sink persists access events and serves the read endpoints.
package sink

import (
	"context"
	"errors"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store is a Sink that can also be queried.
type Store interface {
	// BulkInsert writes records, skipping any whose ID already exists.
	BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error)

	// ListRecent returns persisted records newest first.
	ListRecent(ctx context.Context, limit, offset int) ([]models.AccessLog, error)

	// ListByIP returns persisted records for one client IP, newest first.
	ListByIP(ctx context.Context, ip string, limit, offset int) ([]models.AccessLog, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error

	Close()
}
