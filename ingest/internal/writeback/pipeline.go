// Package writeback buffers access events in memory and persists them to a
// Sink in batches, off the request path.
//
// Records flow from Enqueue into a BoundedQueue. A single background flusher
// drains the queue on a timer tick or when a size trigger fires and writes the
// batch with one Sink.BulkInsert call. Transient failures re-admit the oldest
// records up to the remaining capacity; the excess goes to the optional
// SecondaryBuffer or is dropped and counted. Non-transient failures are never
// retried. Nothing in the flush cycle is reported back to Enqueue callers.
package writeback

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/metrics"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// Sink persists batches. BulkInsert must skip rows whose ID already exists
// instead of failing, and should return a *SinkError on failure.
type Sink interface {
	BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error)
}

// SecondaryBuffer is an external list shared across processes. Entries are
// JSON-encoded EventRecords.
type SecondaryBuffer interface {
	Append(ctx context.Context, entry []byte) error
	DrainAll(ctx context.Context) ([][]byte, error)
	Reinsert(ctx context.Context, entries [][]byte) error
}

// DeadLetter receives records the pipeline gives up on.
type DeadLetter interface {
	Write(ctx context.Context, records []models.EventRecord, reason string, cause error) error
}

// ErrClosed is returned by Close after the first call.
var ErrClosed = errors.New("writeback: pipeline closed")

// Drop and dead-letter reasons.
const (
	ReasonNonTransient   = "non_transient"
	ReasonCapacity       = "capacity"
	ReasonShutdown       = "shutdown"
	ReasonClosed         = "closed"
	ReasonUndecodable    = "undecodable"
	ReasonReinsertFailed = "secondary_reinsert"
)

// Flush triggers.
const (
	triggerForce   = "force"
	triggerRegular = "regular"
	triggerTimer   = "timer"
	triggerSpill   = "spill"
	triggerManual  = "manual"
)

// FlushResult describes one flush cycle.
type FlushResult struct {
	Skipped    bool
	BatchSize  int
	Inserted   int64
	Readmitted int
	Diverted   int
	Dropped    int
	Duration   time.Duration
}

// SecondaryResult describes one secondary-buffer drain cycle.
type SecondaryResult struct {
	Drained     int
	Persisted   int
	Undecodable int
	Reinserted  int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSecondary enables the secondary buffer tier.
func WithSecondary(b SecondaryBuffer) Option {
	return func(p *Pipeline) { p.secondary = b }
}

// WithDeadLetter sets where abandoned records are written.
func WithDeadLetter(d DeadLetter) Option {
	return func(p *Pipeline) { p.dlq = d }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// Pipeline is the write-back ingestion pipeline. Enqueue is safe for
// concurrent use and never blocks on I/O.
type Pipeline struct {
	cfg       Config
	forceAt   int
	queue     *BoundedQueue
	sink      Sink
	secondary SecondaryBuffer
	dlq       DeadLetter
	stats     *Statistics
	logger    *slog.Logger
	now       func() time.Time

	flushing atomic.Bool
	sinkDown atomic.Bool
	closed   atomic.Bool

	kick     chan string
	spill    chan []models.EventRecord
	overflow chan models.EventRecord

	stop      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a pipeline. Call Start to run the background flusher and Close
// to flush what remains.
func New(cfg Config, sink Sink, opts ...Option) (*Pipeline, error) {
	if sink == nil {
		return nil, errors.New("writeback: sink is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:     cfg,
		forceAt: cfg.forceLength(),
		queue:   NewBoundedQueue(cfg.MaxSize),
		sink:    sink,
		logger:  slog.Default(),
		now:     time.Now,
		kick:    make(chan string, 1),
		spill:   make(chan []models.EventRecord, cfg.SpillBacklog),
		stop:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.logger = logging.Component(p.logger, "writeback")
	p.stats = newStatistics(p.now())
	if p.secondary != nil {
		p.overflow = make(chan models.EventRecord, cfg.OverflowBacklog)
	}

	metrics.QueueCapacity.Set(float64(cfg.MaxSize))
	return p, nil
}

// Start launches the background flusher and, with a secondary buffer, the
// overflow writer. Later calls are no-ops.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		// In-flight writes finish under FlushTimeout even if ctx is cancelled.
		ctx = context.WithoutCancel(ctx)

		p.wg.Add(1)
		go p.flushLoop(ctx)

		if p.secondary != nil {
			p.wg.Add(1)
			go p.overflowLoop(ctx)
		}

		p.logger.Info("write-back pipeline started",
			slog.Int("max_size", p.cfg.MaxSize),
			slog.Int("min_batch_size", p.cfg.MinBatchSize),
			slog.Int("force_length", p.forceAt),
			slog.Duration("batch_interval", p.cfg.BatchInterval),
			slog.Bool("secondary", p.secondary != nil),
		)
	})
}

// Enqueue accepts a record without blocking. Failures are only visible
// through Status and logs.
func (p *Pipeline) Enqueue(rec models.EventRecord) {
	p.stats.recordEnqueued()
	metrics.EventsEnqueued.Inc()

	if p.closed.Load() {
		p.drop(1, ReasonClosed)
		return
	}

	if p.overflow != nil && p.sinkDown.Load() {
		select {
		case p.overflow <- rec:
			return
		default:
			// Writer is behind; keep the record in memory instead.
		}
	}

	p.admit(rec)
}

func (p *Pipeline) admit(rec models.EventRecord) {
	n, spilled := p.queue.Append(rec)
	metrics.QueueDepth.Set(float64(n))

	if len(spilled) > 0 {
		p.handoff(spilled)
		return
	}

	if p.flushing.Load() {
		return
	}
	switch {
	case n >= p.forceAt:
		p.signal(triggerForce)
	case n >= p.cfg.MinBatchSize && p.now().Sub(p.stats.lastBatch()) >= p.cfg.BatchInterval:
		p.signal(triggerRegular)
	}
}

// handoff passes a full-queue swap to the flusher. When the flusher is too far
// behind, the records go to the overflow writer or are dropped.
func (p *Pipeline) handoff(batch []models.EventRecord) {
	select {
	case p.spill <- batch:
		p.signal(triggerSpill)
		return
	default:
	}

	sent := 0
	if p.overflow != nil {
	send:
		for _, rec := range batch {
			select {
			case p.overflow <- rec:
				sent++
			default:
				break send
			}
		}
	}
	if rest := len(batch) - sent; rest > 0 {
		p.drop(rest, ReasonCapacity)
		p.logger.Warn("flusher backlog full, dropped spilled events",
			logging.BatchSize(rest),
			logging.QueueLength(p.queue.Len()),
		)
	}
}

func (p *Pipeline) signal(trigger string) {
	select {
	case p.kick <- trigger:
	default:
	}
}

func (p *Pipeline) flushLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.flush(ctx, triggerTimer)
			if p.secondary != nil {
				_, _ = p.DrainSecondary(ctx)
			}
		case trigger := <-p.kick:
			p.flush(ctx, trigger)
		}
	}
}

func (p *Pipeline) overflowLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stop:
			return
		case rec := <-p.overflow:
			if err := p.appendSecondary(ctx, rec); err != nil {
				p.logger.Warn("secondary buffer append failed, returning event to queue",
					logging.EventID(rec.ID),
					logging.Error(err),
				)
				p.admit(rec)
			}
		}
	}
}

// FlushOnce drains the queue and writes it to the sink. It returns a Skipped
// result if another flush is in progress and a zero result for an empty queue.
// The returned error is the sink error, already handled by the retry policy.
func (p *Pipeline) FlushOnce(ctx context.Context) (FlushResult, error) {
	return p.flush(ctx, triggerManual)
}

func (p *Pipeline) flush(ctx context.Context, trigger string) (FlushResult, error) {
	if !p.flushing.CompareAndSwap(false, true) {
		return FlushResult{Skipped: true}, nil
	}
	defer p.flushing.Store(false)

	batch := p.collect()
	if len(batch) == 0 {
		return FlushResult{}, nil
	}

	metrics.FlushTriggers.WithLabelValues(trigger).Inc()
	return p.persist(ctx, batch, false)
}

// collect takes pending spilled batches, oldest first, followed by the queue.
// Callers must hold the flushing flag.
func (p *Pipeline) collect() []models.EventRecord {
	var batch []models.EventRecord
drain:
	for {
		select {
		case spilled := <-p.spill:
			batch = append(batch, spilled...)
		default:
			break drain
		}
	}

	queued := p.queue.DrainAll()
	metrics.QueueDepth.Set(float64(p.queue.Len()))
	if batch == nil {
		return queued
	}
	return append(batch, queued...)
}

// persist writes batch and applies the retry policy on failure. When final
// is set nothing is re-admitted, since no flush will follow.
func (p *Pipeline) persist(ctx context.Context, batch []models.EventRecord, final bool) (FlushResult, error) {
	fctx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer cancel()

	start := p.now()
	inserted, err := p.sink.BulkInsert(fctx, batch)
	elapsed := p.now().Sub(start)

	metrics.FlushDuration.Observe(elapsed.Seconds())
	metrics.FlushBatchSize.Observe(float64(len(batch)))

	res := FlushResult{BatchSize: len(batch), Inserted: inserted, Duration: elapsed}

	if err == nil {
		p.markSinkUp()
		p.stats.recordPersisted(len(batch), elapsed, p.now())
		metrics.EventsPersisted.WithLabelValues("queue").Add(float64(len(batch)))
		p.logger.Debug("flushed access events",
			logging.BatchSize(len(batch)),
			slog.Int64("inserted", inserted),
			logging.Duration(elapsed),
		)
		return res, nil
	}

	p.stats.recordFailed(len(batch))

	if !ShouldRetry(err) {
		metrics.EventsFailed.WithLabelValues(NonTransient.String()).Add(float64(len(batch)))
		p.logger.Error("flush failed, dropping batch",
			logging.BatchSize(len(batch)),
			slog.String("code", ErrorCode(err)),
			logging.Error(err),
		)
		p.deadLetter(ctx, batch, ReasonNonTransient, err)
		return res, err
	}

	metrics.EventsFailed.WithLabelValues(Transient.String()).Add(float64(len(batch)))
	p.markSinkDown(err)

	rest := batch
	if !final {
		res.Readmitted, _ = p.queue.Readmit(batch)
		p.stats.recordReadmitted(res.Readmitted)
		metrics.EventsReadmitted.Add(float64(res.Readmitted))
		metrics.QueueDepth.Set(float64(p.queue.Len()))
		rest = batch[res.Readmitted:]
	}

	if len(rest) > 0 {
		res.Diverted = p.divert(ctx, rest)
		res.Dropped = len(rest) - res.Diverted
		if res.Dropped > 0 {
			reason := ReasonCapacity
			if final {
				reason = ReasonShutdown
			}
			p.drop(res.Dropped, reason)
			p.deadLetter(ctx, rest[res.Diverted:], reason, err)
		}
	}

	p.logger.Warn("flush failed, batch retained for retry",
		logging.BatchSize(len(batch)),
		slog.String("code", ErrorCode(err)),
		slog.Int("readmitted", res.Readmitted),
		slog.Int("diverted", res.Diverted),
		slog.Int("dropped", res.Dropped),
		logging.Error(err),
	)
	return res, err
}

// divert appends records to the secondary buffer until one fails and returns
// how many were stored.
func (p *Pipeline) divert(ctx context.Context, records []models.EventRecord) int {
	if p.secondary == nil {
		return 0
	}
	for i, rec := range records {
		if err := p.appendSecondary(ctx, rec); err != nil {
			p.logger.Warn("secondary buffer append failed",
				logging.BatchSize(len(records)-i),
				logging.Error(err),
			)
			return i
		}
	}
	return len(records)
}

func (p *Pipeline) appendSecondary(ctx context.Context, rec models.EventRecord) error {
	entry, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer cancel()
	if err := p.secondary.Append(actx, entry); err != nil {
		metrics.SecondaryErrors.WithLabelValues("append").Inc()
		return err
	}

	p.stats.recordSecondaryAppended(1)
	metrics.SecondaryAppended.Inc()
	return nil
}

// DrainSecondary moves everything in the secondary buffer to the sink. On a
// transient sink failure the original entries are put back; entries that do
// not decode are dropped. An unavailable buffer skips the cycle.
func (p *Pipeline) DrainSecondary(ctx context.Context) (SecondaryResult, error) {
	var res SecondaryResult
	if p.secondary == nil {
		return res, nil
	}
	if !p.flushing.CompareAndSwap(false, true) {
		return res, nil
	}
	defer p.flushing.Store(false)

	dctx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer cancel()

	entries, err := p.secondary.DrainAll(dctx)
	if err != nil {
		metrics.SecondaryErrors.WithLabelValues("drain").Inc()
		p.logger.Warn("secondary buffer unavailable, skipping drain", logging.Error(err))
		return res, err
	}
	res.Drained = len(entries)
	if len(entries) == 0 {
		return res, nil
	}

	records, kept := decodeEntries(entries)
	res.Undecodable = len(entries) - len(kept)
	if res.Undecodable > 0 {
		p.drop(res.Undecodable, ReasonUndecodable)
		p.logger.Warn("dropped undecodable secondary buffer entries", logging.BatchSize(res.Undecodable))
	}
	if len(records) == 0 {
		return res, nil
	}

	ictx, icancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer icancel()

	start := p.now()
	_, err = p.sink.BulkInsert(ictx, records)
	elapsed := p.now().Sub(start)
	metrics.FlushDuration.Observe(elapsed.Seconds())

	if err == nil {
		p.markSinkUp()
		p.stats.recordPersisted(len(records), elapsed, p.now())
		p.stats.recordSecondaryDrained(len(records))
		metrics.EventsPersisted.WithLabelValues("secondary").Add(float64(len(records)))
		metrics.SecondaryDrained.Add(float64(len(records)))
		res.Persisted = len(records)
		p.logger.Debug("drained secondary buffer", logging.BatchSize(len(records)), logging.Duration(elapsed))
		return res, nil
	}

	if !ShouldRetry(err) {
		p.stats.recordFailed(len(records))
		metrics.EventsFailed.WithLabelValues(NonTransient.String()).Add(float64(len(records)))
		p.logger.Error("secondary drain failed, dropping entries",
			logging.BatchSize(len(records)),
			slog.String("code", ErrorCode(err)),
			logging.Error(err),
		)
		p.deadLetter(ctx, records, ReasonNonTransient, err)
		return res, err
	}

	p.markSinkDown(err)

	rctx, rcancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer rcancel()
	if rerr := p.secondary.Reinsert(rctx, kept); rerr != nil {
		metrics.SecondaryErrors.WithLabelValues("reinsert").Inc()
		p.drop(len(kept), ReasonReinsertFailed)
		p.logger.Error("failed to reinsert secondary buffer entries",
			logging.BatchSize(len(kept)),
			logging.Error(rerr),
		)
		p.deadLetter(ctx, records, ReasonReinsertFailed, rerr)
		return res, errors.Join(err, rerr)
	}

	res.Reinserted = len(kept)
	p.logger.Warn("secondary drain failed, entries reinserted",
		logging.BatchSize(len(kept)),
		slog.String("code", ErrorCode(err)),
		logging.Error(err),
	)
	return res, err
}

// decodeEntries returns the decodable records with their original entries,
// index-aligned.
func decodeEntries(entries [][]byte) ([]models.EventRecord, [][]byte) {
	records := make([]models.EventRecord, 0, len(entries))
	kept := make([][]byte, 0, len(entries))
	for _, entry := range entries {
		var rec models.EventRecord
		if err := json.Unmarshal(entry, &rec); err != nil || rec.ID == "" {
			continue
		}
		records = append(records, rec)
		kept = append(kept, entry)
	}
	return records, kept
}

func (p *Pipeline) markSinkDown(err error) {
	if p.sinkDown.CompareAndSwap(false, true) {
		p.logger.Warn("sink unavailable",
			slog.String("code", ErrorCode(err)),
			slog.Bool("routing_to_secondary", p.secondary != nil),
		)
	}
}

func (p *Pipeline) markSinkUp() {
	if p.sinkDown.CompareAndSwap(true, false) {
		p.logger.Info("sink recovered")
	}
}

func (p *Pipeline) drop(n int, reason string) {
	p.stats.recordDropped(n)
	metrics.EventsDropped.WithLabelValues(reason).Add(float64(n))
}

func (p *Pipeline) deadLetter(ctx context.Context, records []models.EventRecord, reason string, cause error) {
	if p.dlq == nil || len(records) == 0 {
		return
	}

	dctx, cancel := context.WithTimeout(ctx, p.cfg.FlushTimeout)
	defer cancel()
	if err := p.dlq.Write(dctx, records, reason, cause); err != nil {
		p.logger.Error("failed to write dead-letter batch",
			logging.BatchSize(len(records)),
			logging.Reason(reason),
			logging.Error(err),
		)
		return
	}
	metrics.DeadLettered.WithLabelValues(reason).Add(float64(len(records)))
}

// Close stops the timer, then flushes everything still pending: records
// waiting for the overflow writer, spilled batches and the queue. A transient
// failure at this point sends records to the secondary buffer or the
// dead-letter queue. Close is idempotent.
func (p *Pipeline) Close(ctx context.Context) error {
	err := ErrClosed
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.stop)
		p.wg.Wait()
		err = p.finalFlush(ctx)
		p.logger.Info("write-back pipeline stopped", logging.QueueLength(p.queue.Len()))
	})
	return err
}

func (p *Pipeline) finalFlush(ctx context.Context) error {
	leftover := p.drainOverflow(ctx)

	if err := p.acquire(ctx); err != nil {
		p.drop(len(leftover)+p.queue.Len(), ReasonShutdown)
		return err
	}
	defer p.flushing.Store(false)

	batch := append(leftover, p.collect()...)
	if len(batch) == 0 {
		return nil
	}
	metrics.FlushTriggers.WithLabelValues(ReasonShutdown).Inc()
	_, err := p.persist(ctx, batch, true)
	return err
}

// drainOverflow hands queued overflow records to the secondary buffer and
// returns the ones it could not store.
func (p *Pipeline) drainOverflow(ctx context.Context) []models.EventRecord {
	if p.overflow == nil {
		return nil
	}
	var leftover []models.EventRecord
	for {
		select {
		case rec := <-p.overflow:
			if len(leftover) > 0 || p.appendSecondary(ctx, rec) != nil {
				leftover = append(leftover, rec)
			}
		default:
			return leftover
		}
	}
}

// acquire waits for an in-progress flush to finish and takes the flag.
func (p *Pipeline) acquire(ctx context.Context) error {
	for !p.flushing.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() StatsSnapshot {
	return p.stats.Snapshot()
}

// Status reports queue occupancy and counters. It has no side effects.
func (p *Pipeline) Status() models.Status {
	snap := p.stats.Snapshot()

	st := models.Status{
		QueueLength:       p.queue.Len(),
		MaxSize:           p.queue.Cap(),
		IsFlushing:        p.flushing.Load(),
		SinkAvailable:     !p.sinkDown.Load(),
		SecondaryEnabled:  p.secondary != nil,
		TotalEnqueued:     snap.TotalEnqueued,
		TotalPersisted:    snap.TotalPersisted,
		TotalFailed:       snap.TotalFailed,
		TotalDropped:      snap.TotalDropped,
		TotalReadmitted:   snap.TotalReadmitted,
		SecondaryAppended: snap.SecondaryAppended,
		SecondaryDrained:  snap.SecondaryDrained,
		AverageLatencyMs:  float64(snap.AverageLatency) / float64(time.Millisecond),
		LastBatchSize:     snap.LastBatchSize,
	}
	if snap.TotalPersisted > 0 {
		t := snap.LastBatchTime
		st.LastBatchTime = &t
	}
	return st
}
