package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

func testConfig() Config {
	return Config{
		MaxSize:         100,
		MinBatchSize:    5,
		BatchInterval:   time.Hour,
		ForceThreshold:  0.8,
		FlushTimeout:    5 * time.Second,
		SpillBacklog:    4,
		OverflowBacklog: 16,
	}
}

func newTestPipeline(t *testing.T, cfg Config, sink Sink, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	p, err := New(cfg, sink, opts...)
	require.NoError(t, err)
	return p
}

// flushInBackground starts FlushOnce and waits until the sink call is in progress.
func flushInBackground(t *testing.T, p *Pipeline, sink *fakeSink) <-chan FlushResult {
	t.Helper()
	done := make(chan FlushResult, 1)
	go func() {
		res, _ := p.FlushOnce(context.Background())
		done <- res
	}()
	select {
	case <-sink.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("flush did not reach the sink")
	}
	return done
}

func TestNew_Validation(t *testing.T) {
	_, err := New(testConfig(), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.MaxSize = 0
	_, err = New(cfg, newFakeSink())
	assert.ErrorIs(t, err, ErrInvalidMaxSize)
}

func TestFlushOnce_EmptyQueue(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)

	res, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FlushResult{}, res)
	assert.Empty(t, sink.batchSizes())
}

func TestFlushOnce_Success(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)

	for _, rec := range makeRecords(4) {
		p.Enqueue(rec)
	}

	res, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.BatchSize)
	assert.Equal(t, int64(4), res.Inserted)

	st := p.Status()
	assert.Equal(t, 0, st.QueueLength)
	assert.Equal(t, int64(4), st.TotalEnqueued)
	assert.Equal(t, int64(4), st.TotalPersisted)
	assert.Equal(t, 4, st.LastBatchSize)
	assert.NotNil(t, st.LastBatchTime)
	assert.True(t, st.SinkAvailable)
}

// Timer tick flushes a non-empty queue even below the minimum batch size.
func TestScenarioA_TimerFlushesBelowMinBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchInterval = 20 * time.Millisecond
	sink := newFakeSink()
	p := newTestPipeline(t, cfg, sink)

	for _, rec := range makeRecords(3) {
		p.Enqueue(rec)
	}
	assert.Equal(t, 3, p.Status().QueueLength)

	p.Start(context.Background())
	defer p.Close(context.Background())

	assert.Eventually(t, func() bool {
		st := p.Status()
		return st.QueueLength == 0 && st.TotalPersisted == 3
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, sink.rowCount())
}

// Reaching the force threshold signals a flush before the next enqueue.
func TestScenarioB_ForceTrigger(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)
	records := makeRecords(80)

	for _, rec := range records[:79] {
		p.Enqueue(rec)
	}
	assert.Empty(t, p.kick, "no trigger below threshold")

	p.Enqueue(records[79])
	require.Len(t, p.kick, 1)
	assert.Equal(t, triggerForce, <-p.kick)
}

func TestScenarioB_ForceTriggerFlushesInBackground(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)
	p.Start(context.Background())
	defer p.Close(context.Background())

	for _, rec := range makeRecords(80) {
		p.Enqueue(rec)
	}

	assert.Eventually(t, func() bool {
		return p.Status().TotalPersisted == 80
	}, 2*time.Second, 5*time.Millisecond)
	assert.LessOrEqual(t, p.Status().QueueLength, p.Status().MaxSize)
}

// A connection-refused failure re-admits the whole batch when it fits.
func TestScenarioC_TransientFailureReadmits(t *testing.T) {
	sink := newFakeSink().blocking().failWith(errRefused)
	p := newTestPipeline(t, testConfig(), sink)

	batch := makeRecords(10)
	for _, rec := range batch {
		p.Enqueue(rec)
	}

	done := flushInBackground(t, p, sink)

	arrived := makeRecords(5)
	for _, rec := range arrived {
		p.Enqueue(rec)
	}
	assert.Equal(t, 5, p.Status().QueueLength)

	close(sink.release)
	res := <-done

	assert.Equal(t, 10, res.Readmitted)
	assert.Zero(t, res.Dropped)

	st := p.Status()
	assert.Equal(t, 15, st.QueueLength)
	assert.Equal(t, int64(10), st.TotalFailed)
	assert.Equal(t, int64(10), st.TotalReadmitted)
	assert.Zero(t, st.TotalDropped)
	assert.False(t, st.SinkAvailable)

	contents := p.queue.DrainAll()
	assert.Equal(t, append(ids(batch), ids(arrived)...), ids(contents), "failed batch goes first")
}

// A non-transient failure drops the batch without re-admission.
func TestScenarioD_NonTransientFailureDrops(t *testing.T) {
	sink := newFakeSink().blocking().failWith(errPoison)
	dlq := newFakeDLQ()
	p := newTestPipeline(t, testConfig(), sink, WithDeadLetter(dlq))

	for _, rec := range makeRecords(10) {
		p.Enqueue(rec)
	}

	done := flushInBackground(t, p, sink)
	for _, rec := range makeRecords(2) {
		p.Enqueue(rec)
	}
	close(sink.release)
	res := <-done

	assert.Zero(t, res.Readmitted)
	st := p.Status()
	assert.Equal(t, 2, st.QueueLength, "only records that arrived during the flush remain")
	assert.Equal(t, int64(10), st.TotalFailed)
	assert.Zero(t, st.TotalReadmitted)
	assert.True(t, st.SinkAvailable)
	assert.Equal(t, 10, dlq.count(ReasonNonTransient))
}

func TestRetryBoundedness_ExcessDropped(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 20
	cfg.ForceThreshold = 1.0
	cfg.MinBatchSize = 20

	sink := newFakeSink().blocking().failWith(errRefused)
	dlq := newFakeDLQ()
	p := newTestPipeline(t, cfg, sink, WithDeadLetter(dlq))

	batch := makeRecords(15)
	for _, rec := range batch {
		p.Enqueue(rec)
	}
	done := flushInBackground(t, p, sink)
	for _, rec := range makeRecords(12) {
		p.Enqueue(rec)
	}
	close(sink.release)
	res := <-done

	assert.Equal(t, 8, res.Readmitted)
	assert.Equal(t, 7, res.Dropped)

	st := p.Status()
	assert.Equal(t, 20, st.QueueLength)
	assert.Equal(t, int64(15), st.TotalFailed)
	assert.Equal(t, int64(7), st.TotalDropped)
	assert.Equal(t, 7, dlq.count(ReasonCapacity))

	assert.Equal(t, ids(batch[:8]), ids(p.queue.DrainAll()[:8]), "oldest records retried first")
}

func TestRetryBoundedness_ExcessDivertedToSecondary(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 20
	cfg.ForceThreshold = 1.0
	cfg.MinBatchSize = 20

	sink := newFakeSink().blocking().failWith(errRefused)
	secondary := &fakeSecondary{}
	p := newTestPipeline(t, cfg, sink, WithSecondary(secondary))

	batch := makeRecords(15)
	for _, rec := range batch {
		p.Enqueue(rec)
	}
	done := flushInBackground(t, p, sink)
	for _, rec := range makeRecords(12) {
		p.Enqueue(rec)
	}
	close(sink.release)
	res := <-done

	assert.Equal(t, 8, res.Readmitted)
	assert.Equal(t, 7, res.Diverted)
	assert.Zero(t, res.Dropped)

	entries := secondary.snapshot()
	require.Len(t, entries, 7)
	var first models.EventRecord
	require.NoError(t, json.Unmarshal(entries[0], &first))
	assert.Equal(t, batch[8].ID, first.ID)
	assert.Equal(t, int64(7), p.Status().SecondaryAppended)
}

func TestIdempotentPersistence(t *testing.T) {
	// The first attempt stores 4 rows before failing; the retry must not
	// duplicate them.
	sink := newFakeSink().failWith(errRefused)
	sink.partial = 4
	p := newTestPipeline(t, testConfig(), sink)

	for _, rec := range makeRecords(10) {
		p.Enqueue(rec)
	}

	_, err := p.FlushOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 4, sink.rowCount())
	assert.Equal(t, 10, p.Status().QueueLength)

	res, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), res.Inserted)
	assert.Equal(t, 10, sink.rowCount())
}

func TestNoDuplicationAcrossFlushes(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)

	first := makeRecords(6)
	for _, rec := range first {
		p.Enqueue(rec)
	}
	_, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, p.Status().QueueLength)

	for _, rec := range makeRecords(3) {
		p.Enqueue(rec)
	}
	_, err = p.FlushOnce(context.Background())
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.batches, 2)
	flushed := make(map[string]bool)
	for _, rec := range sink.batches[0] {
		flushed[rec.ID] = true
	}
	for _, rec := range sink.batches[1] {
		assert.False(t, flushed[rec.ID], "record %s flushed twice", rec.ID)
	}
}

func TestFlushOnce_SingleFlight(t *testing.T) {
	sink := newFakeSink().blocking()
	p := newTestPipeline(t, testConfig(), sink)

	for _, rec := range makeRecords(3) {
		p.Enqueue(rec)
	}
	done := flushInBackground(t, p, sink)

	assert.True(t, p.Status().IsFlushing)
	res, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(sink.release)
	assert.Equal(t, 3, (<-done).BatchSize)
	assert.False(t, p.Status().IsFlushing)
}

func TestRegularTrigger(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	cfg := testConfig()
	cfg.MinBatchSize = 3
	cfg.BatchInterval = time.Second
	p := newTestPipeline(t, cfg, newFakeSink(), WithClock(clock.Now))

	records := makeRecords(4)
	for _, rec := range records[:3] {
		p.Enqueue(rec)
	}
	assert.Empty(t, p.kick, "interval has not elapsed")

	clock.Advance(2 * time.Second)
	p.Enqueue(records[3])
	require.Len(t, p.kick, 1)
	assert.Equal(t, triggerRegular, <-p.kick)
}

func TestTriggersSuppressedWhileFlushing(t *testing.T) {
	sink := newFakeSink().blocking()
	p := newTestPipeline(t, testConfig(), sink)

	p.Enqueue(makeRecords(1)[0])
	done := flushInBackground(t, p, sink)

	for _, rec := range makeRecords(85) {
		p.Enqueue(rec)
	}
	assert.Empty(t, p.kick)

	close(sink.release)
	<-done
}

func TestHardCapSpill(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 5
	cfg.MinBatchSize = 5
	cfg.ForceThreshold = 1.0
	sink := newFakeSink().blocking()
	p := newTestPipeline(t, cfg, sink)

	// Hold the flag so the queue fills without being drained.
	p.Enqueue(makeRecords(1)[0])
	done := flushInBackground(t, p, sink)

	records := makeRecords(6)
	for _, rec := range records {
		p.Enqueue(rec)
		assert.LessOrEqual(t, p.Status().QueueLength, cfg.MaxSize)
	}
	assert.Equal(t, 1, p.Status().QueueLength)
	assert.Len(t, p.spill, 1)

	close(sink.release)
	<-done

	res, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, res.BatchSize)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, ids(records), ids(sink.batches[len(sink.batches)-1]), "spilled records flush first")
}

func TestHardCapSpill_BacklogFullDrops(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSize = 2
	cfg.MinBatchSize = 2
	cfg.ForceThreshold = 1.0
	cfg.SpillBacklog = 1
	p := newTestPipeline(t, cfg, newFakeSink())

	// Without a running flusher: first spill is parked, the second is dropped.
	for _, rec := range makeRecords(5) {
		p.Enqueue(rec)
	}

	st := p.Status()
	assert.Equal(t, 1, st.QueueLength)
	assert.Equal(t, int64(2), st.TotalDropped)
	assert.Len(t, p.spill, 1)
}

func TestBoundInvariantUnderConcurrentLoad(t *testing.T) {
	cfg := Config{
		MaxSize:        50,
		MinBatchSize:   10,
		BatchInterval:  5 * time.Millisecond,
		ForceThreshold: 0.8,
		SpillBacklog:   8,
	}
	sink := newFakeSink()
	p := newTestPipeline(t, cfg, sink)
	p.Start(context.Background())

	const (
		writers   = 8
		perWriter = 1000
	)

	var overBound atomic.Bool
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if p.Status().QueueLength > cfg.MaxSize {
					overBound.Store(true)
				}
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, rec := range makeRecords(perWriter) {
				p.Enqueue(rec)
			}
		}()
	}
	wg.Wait()
	close(stop)

	require.NoError(t, p.Close(context.Background()))

	st := p.Status()
	assert.False(t, overBound.Load(), "queue length exceeded max size")
	assert.Equal(t, int64(writers*perWriter), st.TotalEnqueued)
	assert.Equal(t, st.TotalEnqueued, st.TotalPersisted+st.TotalDropped)
	assert.Equal(t, int(st.TotalPersisted), sink.rowCount(), "no record persisted twice")
	assert.Zero(t, st.QueueLength)
}

func TestSinkDownRoutesToSecondary(t *testing.T) {
	sink := newFakeSink().failWith(errRefused)
	secondary := &fakeSecondary{}
	p := newTestPipeline(t, testConfig(), sink, WithSecondary(secondary))
	p.Start(context.Background())
	defer p.Close(context.Background())

	p.Enqueue(makeRecords(1)[0])
	_, err := p.FlushOnce(context.Background())
	require.Error(t, err)
	require.False(t, p.Status().SinkAvailable)
	require.Equal(t, 1, p.Status().QueueLength)

	routed := makeRecords(3)
	for _, rec := range routed {
		p.Enqueue(rec)
	}

	assert.Eventually(t, func() bool {
		return len(secondary.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, p.Status().QueueLength, "routed records bypass the queue")

	// Sink recovers: the drain persists the routed records.
	res, err := p.DrainSecondary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Persisted)

	st := p.Status()
	assert.True(t, st.SinkAvailable)
	assert.Equal(t, int64(3), st.SecondaryDrained)
	assert.Equal(t, int64(3), st.SecondaryAppended)
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, rec := range routed {
		_, ok := sink.rows[rec.ID]
		assert.True(t, ok)
	}
}

func TestOverflowWriterFallsBackToQueue(t *testing.T) {
	sink := newFakeSink().failWith(errRefused)
	secondary := &fakeSecondary{appendErr: errors.New("redis: connection refused")}
	p := newTestPipeline(t, testConfig(), sink, WithSecondary(secondary))
	p.Start(context.Background())
	defer p.Close(context.Background())

	p.Enqueue(makeRecords(1)[0])
	_, _ = p.FlushOnce(context.Background())
	require.False(t, p.Status().SinkAvailable)

	for _, rec := range makeRecords(2) {
		p.Enqueue(rec)
	}

	assert.Eventually(t, func() bool {
		return p.Status().QueueLength == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Status().TotalDropped)
}

func TestDrainSecondary(t *testing.T) {
	encode := func(t *testing.T, rec models.EventRecord) []byte {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		return data
	}

	t.Run("persists and counts", func(t *testing.T) {
		records := makeRecords(3)
		secondary := &fakeSecondary{}
		for _, rec := range records {
			secondary.entries = append(secondary.entries, encode(t, rec))
		}
		sink := newFakeSink()
		p := newTestPipeline(t, testConfig(), sink, WithSecondary(secondary))

		res, err := p.DrainSecondary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SecondaryResult{Drained: 3, Persisted: 3}, res)
		assert.Empty(t, secondary.snapshot())
		assert.Equal(t, int64(3), p.Status().TotalPersisted)
	})

	t.Run("transient failure reinserts original entries", func(t *testing.T) {
		valid := encode(t, makeRecords(1)[0])
		secondary := &fakeSecondary{entries: [][]byte{valid, []byte("{not json")}}
		sink := newFakeSink().failWith(errRefused)
		p := newTestPipeline(t, testConfig(), sink, WithSecondary(secondary))

		res, err := p.DrainSecondary(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, res.Reinserted)
		assert.Equal(t, 1, res.Undecodable)
		assert.Equal(t, [][]byte{valid}, secondary.snapshot(), "original bytes are put back")

		st := p.Status()
		assert.Equal(t, int64(1), st.TotalDropped)
		assert.False(t, st.SinkAvailable)
	})

	t.Run("non-transient failure dead-letters", func(t *testing.T) {
		secondary := &fakeSecondary{entries: [][]byte{encode(t, makeRecords(1)[0])}}
		dlq := newFakeDLQ()
		p := newTestPipeline(t, testConfig(), newFakeSink().failWith(errPoison),
			WithSecondary(secondary), WithDeadLetter(dlq))

		_, err := p.DrainSecondary(context.Background())
		require.Error(t, err)
		assert.Empty(t, secondary.snapshot())
		assert.Equal(t, 1, dlq.count(ReasonNonTransient))
		assert.Equal(t, int64(1), p.Status().TotalFailed)
	})

	t.Run("unavailable buffer skips cycle", func(t *testing.T) {
		secondary := &fakeSecondary{drainErr: errors.New("redis: connection refused")}
		sink := newFakeSink()
		p := newTestPipeline(t, testConfig(), sink, WithSecondary(secondary))

		res, err := p.DrainSecondary(context.Background())
		require.Error(t, err)
		assert.Equal(t, SecondaryResult{}, res)
		assert.Empty(t, sink.batchSizes())
	})

	t.Run("reinsert failure dead-letters", func(t *testing.T) {
		secondary := &fakeSecondary{
			entries:     [][]byte{encode(t, makeRecords(1)[0])},
			reinsertErr: errors.New("redis: broken pipe"),
		}
		dlq := newFakeDLQ()
		p := newTestPipeline(t, testConfig(), newFakeSink().failWith(errRefused),
			WithSecondary(secondary), WithDeadLetter(dlq))

		_, err := p.DrainSecondary(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, dlq.count(ReasonReinsertFailed))
		assert.Equal(t, int64(1), p.Status().TotalDropped)
	})

	t.Run("no secondary configured", func(t *testing.T) {
		p := newTestPipeline(t, testConfig(), newFakeSink())
		res, err := p.DrainSecondary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, SecondaryResult{}, res)
	})
}

func TestClose_FlushesRemaining(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)
	p.Start(context.Background())

	for _, rec := range makeRecords(7) {
		p.Enqueue(rec)
	}

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 7, sink.rowCount())
	assert.Zero(t, p.Status().QueueLength)

	p.Enqueue(makeRecords(1)[0])
	assert.Equal(t, int64(1), p.Status().TotalDropped)
	assert.ErrorIs(t, p.Close(context.Background()), ErrClosed)
}

func TestClose_WithoutStart(t *testing.T) {
	sink := newFakeSink()
	p := newTestPipeline(t, testConfig(), sink)

	for _, rec := range makeRecords(2) {
		p.Enqueue(rec)
	}
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 2, sink.rowCount())
}

func TestClose_TransientFailureDivertsEverything(t *testing.T) {
	t.Run("to secondary", func(t *testing.T) {
		secondary := &fakeSecondary{}
		p := newTestPipeline(t, testConfig(), newFakeSink().failWith(errRefused), WithSecondary(secondary))

		for _, rec := range makeRecords(4) {
			p.Enqueue(rec)
		}
		require.Error(t, p.Close(context.Background()))
		assert.Len(t, secondary.snapshot(), 4)
		assert.Zero(t, p.Status().TotalReadmitted)
	})

	t.Run("to dead letter", func(t *testing.T) {
		dlq := newFakeDLQ()
		p := newTestPipeline(t, testConfig(), newFakeSink().failWith(errRefused), WithDeadLetter(dlq))

		for _, rec := range makeRecords(4) {
			p.Enqueue(rec)
		}
		require.Error(t, p.Close(context.Background()))
		assert.Equal(t, 4, dlq.count(ReasonShutdown))
		assert.Equal(t, int64(4), p.Status().TotalDropped)
	})
}

func TestClose_DrainsPendingOverflow(t *testing.T) {
	secondary := &fakeSecondary{}
	p := newTestPipeline(t, testConfig(), newFakeSink().failWith(errRefused), WithSecondary(secondary))

	p.Enqueue(makeRecords(1)[0])
	_, _ = p.FlushOnce(context.Background())

	// Not started, so routed records wait in the overflow channel.
	for _, rec := range makeRecords(3) {
		p.Enqueue(rec)
	}
	require.Len(t, p.overflow, 3)

	require.NoError(t, p.Close(context.Background()))
	assert.Len(t, secondary.snapshot(), 3)
	assert.Equal(t, int64(1), p.Status().TotalPersisted, "readmitted record flushed on close")
}

func TestStatus_AverageLatency(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	sink := &slowSink{fakeSink: newFakeSink(), clock: clock, step: 40 * time.Millisecond}
	p := newTestPipeline(t, testConfig(), sink, WithClock(clock.Now))

	p.Enqueue(makeRecords(1)[0])
	_, err := p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 40.0, p.Status().AverageLatencyMs, 0.001)

	sink.step = 20 * time.Millisecond
	p.Enqueue(makeRecords(1)[0])
	_, err = p.FlushOnce(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30.0, p.Status().AverageLatencyMs, 0.001)
}

// slowSink advances a fake clock by step on every insert.
type slowSink struct {
	*fakeSink
	clock *fakeClock
	step  time.Duration
}

func (s *slowSink) BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error) {
	s.clock.Advance(s.step)
	return s.fakeSink.BulkInsert(ctx, records)
}
