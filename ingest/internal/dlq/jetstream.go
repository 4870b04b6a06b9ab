package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/common/messaging"
	"github.com/telhawk-systems/accesslog/common/messaging/nats"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// JetStreamQueue publishes failed batches to NATS JetStream.
// Safe for use across multiple ingest instances.
type JetStreamQueue struct {
	conn    *nats.Conn
	stream  jetstream.Stream
	written atomic.Uint64
	logger  *slog.Logger
}

// NewJetStreamQueue creates the DLQ stream if needed and returns a queue
// publishing to it.
func NewJetStreamQueue(ctx context.Context, conn *nats.Conn, logger *slog.Logger) (*JetStreamQueue, error) {
	if conn == nil {
		return nil, errors.New("nats connection is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	stream, err := conn.EnsureStream(ctx, nats.DeadLetterStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.Info("DLQ stream ready", slog.String("stream", nats.DeadLetterStream.Name))

	return &JetStreamQueue{
		conn:   conn,
		stream: stream,
		logger: logging.Component(logger, "dlq"),
	}, nil
}

// Write publishes one failed batch to accesslog.dlq.<reason>.
func (q *JetStreamQueue) Write(ctx context.Context, records []models.EventRecord, reason string, cause error) error {
	if q == nil || len(records) == 0 {
		return nil
	}

	data, err := json.Marshal(newFailedBatch(records, reason, cause))
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	env := messaging.NewEnvelope(messaging.DLQSubject(reason), data).
		Set(messaging.HeaderDLQReason, reason).
		Set(messaging.HeaderDLQCount, strconv.Itoa(len(records)))
	if cause != nil {
		env.Set(messaging.HeaderDLQError, cause.Error())
	}

	if _, err := q.conn.Publish(ctx, env); err != nil {
		return fmt.Errorf("publish dlq entry: %w", err)
	}

	q.written.Add(1)
	q.logger.Warn("dead-lettered batch", logging.Reason(reason), logging.BatchSize(len(records)))
	return nil
}

// Stats returns DLQ metrics from the stream.
func (q *JetStreamQueue) Stats(ctx context.Context) map[string]any {
	if q == nil {
		return map[string]any{"enabled": false, "backend": "jetstream"}
	}

	stats := map[string]any{
		"enabled":       true,
		"backend":       "jetstream",
		"written_local": q.written.Load(),
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		stats["error"] = err.Error()
		return stats
	}
	stats["total_messages"] = info.State.Msgs
	stats["total_bytes"] = info.State.Bytes
	stats["first_seq"] = info.State.FirstSeq
	stats["last_seq"] = info.State.LastSeq
	stats["consumer_count"] = info.State.Consumers
	return stats
}

// List reads up to limit failed batches from the start of the stream.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedBatch, error) {
	if q == nil {
		return nil, ErrNotEnabled
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{messaging.SubjectAccessLogDLQAll},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var batches []FailedBatch
	for msg := range msgs.Messages() {
		var fb FailedBatch
		if err := json.Unmarshal(msg.Data(), &fb); err != nil {
			q.logger.Warn("failed to parse dlq message", logging.Error(err))
			continue
		}
		batches = append(batches, fb)
	}
	if err := msgs.Error(); err != nil && !errors.Is(err, jetstream.ErrNoMessages) {
		q.logger.Warn("dlq fetch completed with error", logging.Error(err))
	}
	return batches, nil
}

// Purge removes all messages from the DLQ stream.
func (q *JetStreamQueue) Purge(ctx context.Context) error {
	if q == nil {
		return ErrNotEnabled
	}
	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}
	q.logger.Info("purged dlq stream")
	return nil
}
