package writeback

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics aggregates pipeline counters. The pipeline owns and updates it;
// readers only see Snapshot copies.
type Statistics struct {
	enqueued          atomic.Int64
	persisted         atomic.Int64
	failed            atomic.Int64
	dropped           atomic.Int64
	readmitted        atomic.Int64
	secondaryAppended atomic.Int64
	secondaryDrained  atomic.Int64

	mu             sync.Mutex
	averageLatency time.Duration
	lastBatchSize  int
	lastBatchTime  time.Time
}

// StatsSnapshot is an immutable copy of Statistics.
type StatsSnapshot struct {
	TotalEnqueued     int64
	TotalPersisted    int64
	TotalFailed       int64
	TotalDropped      int64
	TotalReadmitted   int64
	SecondaryAppended int64
	SecondaryDrained  int64
	AverageLatency    time.Duration
	LastBatchSize     int
	LastBatchTime     time.Time
}

func newStatistics(start time.Time) *Statistics {
	return &Statistics{lastBatchTime: start}
}

func (s *Statistics) recordEnqueued() {
	s.enqueued.Add(1)
}

// recordPersisted folds a successful batch in. The latency average is
// smoothed as (old + sample) / 2, seeded by the first sample.
func (s *Statistics) recordPersisted(n int, latency time.Duration, at time.Time) {
	s.persisted.Add(int64(n))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.averageLatency == 0 {
		s.averageLatency = latency
	} else {
		s.averageLatency = (s.averageLatency + latency) / 2
	}
	s.lastBatchSize = n
	s.lastBatchTime = at
}

func (s *Statistics) recordFailed(n int) {
	s.failed.Add(int64(n))
}

func (s *Statistics) recordDropped(n int) {
	s.dropped.Add(int64(n))
}

func (s *Statistics) recordReadmitted(n int) {
	s.readmitted.Add(int64(n))
}

func (s *Statistics) recordSecondaryAppended(n int) {
	s.secondaryAppended.Add(int64(n))
}

func (s *Statistics) recordSecondaryDrained(n int) {
	s.secondaryDrained.Add(int64(n))
}

func (s *Statistics) lastBatch() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBatchTime
}

// Snapshot returns a copy of the current values.
func (s *Statistics) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		TotalEnqueued:     s.enqueued.Load(),
		TotalPersisted:    s.persisted.Load(),
		TotalFailed:       s.failed.Load(),
		TotalDropped:      s.dropped.Load(),
		TotalReadmitted:   s.readmitted.Load(),
		SecondaryAppended: s.secondaryAppended.Load(),
		SecondaryDrained:  s.secondaryDrained.Load(),
	}

	s.mu.Lock()
	snap.AverageLatency = s.averageLatency
	snap.LastBatchSize = s.lastBatchSize
	snap.LastBatchTime = s.lastBatchTime
	s.mu.Unlock()

	return snap
}
