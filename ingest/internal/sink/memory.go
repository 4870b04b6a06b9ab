package sink

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu   sync.RWMutex
	rows map[string]models.AccessLog
	now  func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		rows: make(map[string]models.AccessLog),
		now:  time.Now,
	}
}

func (m *Memory) BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, Classify(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	created := m.now().UTC()
	var inserted int64
	for _, r := range records {
		if _, ok := m.rows[r.ID]; ok {
			continue
		}
		m.rows[r.ID] = models.AccessLog{
			ID:            r.ID,
			ClientIP:      r.ClientIP,
			IPType:        r.IPType,
			RequestPath:   r.RequestPath,
			RequestMethod: r.RequestMethod,
			UserAgent:     r.UserAgent,
			ObservedAt:    r.ObservedAt,
			CreateTime:    created,
		}
		inserted++
	}
	return inserted, nil
}

func (m *Memory) ListRecent(_ context.Context, limit, offset int) ([]models.AccessLog, error) {
	return m.list(func(models.AccessLog) bool { return true }, limit, offset), nil
}

func (m *Memory) ListByIP(_ context.Context, ip string, limit, offset int) ([]models.AccessLog, error) {
	return m.list(func(l models.AccessLog) bool { return l.ClientIP == ip }, limit, offset), nil
}

func (m *Memory) list(match func(models.AccessLog) bool, limit, offset int) []models.AccessLog {
	m.mu.RLock()
	out := make([]models.AccessLog, 0, len(m.rows))
	for _, l := range m.rows {
		if match(l) {
			out = append(out, l)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.AccessLog) int {
		if c := b.ObservedAt.Compare(a.ObservedAt); c != 0 {
			return c
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})

	if offset >= len(out) {
		return []models.AccessLog{}
	}
	out = out[max(offset, 0):]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
