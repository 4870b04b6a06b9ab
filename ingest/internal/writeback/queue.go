package writeback

import (
	"sync"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// BoundedQueue is an insertion-ordered buffer of records capped at maxSize.
// Safe for concurrent use; the mutex is held only for append and swap.
type BoundedQueue struct {
	mu      sync.Mutex
	records []models.EventRecord
	maxSize int
}

// NewBoundedQueue creates a queue holding at most maxSize records.
func NewBoundedQueue(maxSize int) *BoundedQueue {
	if maxSize < 1 {
		maxSize = 1
	}
	return &BoundedQueue{
		records: make([]models.EventRecord, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append adds rec to the tail and returns the resulting length. It never
// rejects a record: if the queue is full, the current contents are swapped
// out in the same critical section and returned as spilled, so the length
// never exceeds maxSize.
func (q *BoundedQueue) Append(rec models.EventRecord) (length int, spilled []models.EventRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) >= q.maxSize {
		spilled = q.records
		q.records = make([]models.EventRecord, 0, q.maxSize)
	}
	q.records = append(q.records, rec)
	return len(q.records), spilled
}

// DrainAll swaps the buffer for an empty one and returns the previous contents.
func (q *BoundedQueue) DrainAll() []models.EventRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.records) == 0 {
		return nil
	}
	batch := q.records
	q.records = make([]models.EventRecord, 0, q.maxSize)
	return batch
}

// Readmit puts the oldest records of batch back at the front of the queue,
// as many as the remaining capacity allows. Records admitted since the batch
// was drained keep their relative order behind them.
func (q *BoundedQueue) Readmit(batch []models.EventRecord) (readmitted, dropped int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	readmitted = min(len(batch), q.maxSize-len(q.records))
	if readmitted <= 0 {
		return 0, len(batch)
	}

	merged := make([]models.EventRecord, 0, q.maxSize)
	merged = append(merged, batch[:readmitted]...)
	merged = append(merged, q.records...)
	q.records = merged
	return readmitted, len(batch) - readmitted
}

// Len returns the current number of queued records.
func (q *BoundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}

// Cap returns the maximum number of records the queue holds.
func (q *BoundedQueue) Cap() int {
	return q.maxSize
}
