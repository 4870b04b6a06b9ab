package writeback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

func makeRecords(n int) []models.EventRecord {
	records := make([]models.EventRecord, n)
	for i := range records {
		records[i] = models.NewEventRecord(
			fmt.Sprintf("10.0.%d.%d", i/250, i%250+1),
			models.IPv4,
			"/ip/my",
			"GET",
			"test-agent",
			time.Now(),
		)
	}
	return records
}

func ids(records []models.EventRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink stores rows keyed by ID and ignores duplicates.
type fakeSink struct {
	mu      sync.Mutex
	rows    map[string]models.EventRecord
	batches [][]models.EventRecord

	// errs are returned by successive calls; nil entries succeed.
	errs []error
	// partial is how many records of a failing batch are stored anyway.
	partial int

	entered chan struct{}
	release chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{rows: make(map[string]models.EventRecord)}
}

// blocking makes the next BulkInsert signal entered and wait for release.
func (s *fakeSink) blocking() *fakeSink {
	s.entered = make(chan struct{}, 1)
	s.release = make(chan struct{})
	return s
}

func (s *fakeSink) failWith(errs ...error) *fakeSink {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
	return s
}

func (s *fakeSink) BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error) {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return 0, NewTransientError(CodeTimeout, ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches = append(s.batches, slices.Clone(records))

	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}

	stored := records
	if err != nil {
		stored = records[:min(s.partial, len(records))]
	}

	var inserted int64
	for _, r := range stored {
		if _, ok := s.rows[r.ID]; !ok {
			s.rows[r.ID] = r
			inserted++
		}
	}
	return inserted, err
}

func (s *fakeSink) rowCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *fakeSink) batchSizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	sizes := make([]int, len(s.batches))
	for i, b := range s.batches {
		sizes[i] = len(b)
	}
	return sizes
}

// fakeSecondary is an in-memory SecondaryBuffer.
type fakeSecondary struct {
	mu          sync.Mutex
	entries     [][]byte
	appendErr   error
	drainErr    error
	reinsertErr error
}

func (b *fakeSecondary) Append(_ context.Context, entry []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.appendErr != nil {
		return b.appendErr
	}
	b.entries = append(b.entries, slices.Clone(entry))
	return nil
}

func (b *fakeSecondary) DrainAll(context.Context) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.drainErr != nil {
		return nil, b.drainErr
	}
	out := b.entries
	b.entries = nil
	return out, nil
}

func (b *fakeSecondary) Reinsert(_ context.Context, entries [][]byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reinsertErr != nil {
		return b.reinsertErr
	}
	b.entries = append(b.entries, entries...)
	return nil
}

func (b *fakeSecondary) snapshot() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.entries)
}

// fakeDLQ records dead-lettered batches by reason.
type fakeDLQ struct {
	mu      sync.Mutex
	records map[string][]models.EventRecord
}

func newFakeDLQ() *fakeDLQ {
	return &fakeDLQ{records: make(map[string][]models.EventRecord)}
}

func (d *fakeDLQ) Write(_ context.Context, records []models.EventRecord, reason string, _ error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[reason] = append(d.records[reason], records...)
	return nil
}

func (d *fakeDLQ) count(reason string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records[reason])
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var (
	errRefused = NewTransientError(CodeConnectionRefused, errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))
	errPoison  = NewNonTransientError("22P02", errors.New("invalid input syntax"))
)
