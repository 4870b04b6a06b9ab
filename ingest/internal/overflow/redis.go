// Package overflow provides the Redis-backed secondary buffer used by the
// write-back pipeline when the primary sink is unavailable.
//
// Redis Key Structure:
//
//	{prefix}:events - List of JSON-encoded event records (RPUSH on write)
//
// The list is shared by every ingest instance. DrainAll reads and removes
// entries in one MULTI/EXEC transaction; a failed persist puts the original
// entries back with Reinsert.
package overflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "accesslog"

// RedisBuffer is a list-backed secondary buffer.
type RedisBuffer struct {
	client   *redis.Client
	key      string
	maxDrain int64
}

// Option configures a RedisBuffer.
type Option func(*RedisBuffer)

// WithMaxDrain caps how many entries a single DrainAll removes. Zero or a
// negative value drains the whole list.
func WithMaxDrain(n int) Option {
	return func(b *RedisBuffer) {
		b.maxDrain = int64(n)
	}
}

// NewRedisBuffer connects to redisURL and verifies the connection.
func NewRedisBuffer(redisURL, prefix string, opts ...Option) (*RedisBuffer, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisBufferFromClient(client, prefix, opts...), nil
}

// NewRedisBufferFromClient wraps an existing Redis connection.
func NewRedisBufferFromClient(client *redis.Client, prefix string, opts ...Option) *RedisBuffer {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	b := &RedisBuffer{
		client: client,
		key:    prefix + ":events",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Key returns the Redis list key.
func (b *RedisBuffer) Key() string {
	return b.key
}

// Append pushes one serialized record to the tail of the list.
func (b *RedisBuffer) Append(ctx context.Context, entry []byte) error {
	if err := b.client.RPush(ctx, b.key, entry).Err(); err != nil {
		return fmt.Errorf("failed to append to secondary buffer: %w", err)
	}
	return nil
}

// DrainAll atomically reads and removes the buffered entries.
func (b *RedisBuffer) DrainAll(ctx context.Context) ([][]byte, error) {
	stop := int64(-1)
	if b.maxDrain > 0 {
		stop = b.maxDrain - 1
	}

	var read *redis.StringSliceCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		read = pipe.LRange(ctx, b.key, 0, stop)
		if stop < 0 {
			pipe.Del(ctx, b.key)
		} else {
			pipe.LTrim(ctx, b.key, stop+1, -1)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to drain secondary buffer: %w", err)
	}

	values := read.Val()
	if len(values) == 0 {
		return nil, nil
	}
	entries := make([][]byte, len(values))
	for i, v := range values {
		entries[i] = []byte(v)
	}
	return entries, nil
}

// Reinsert pushes previously drained entries back onto the list.
func (b *RedisBuffer) Reinsert(ctx context.Context, entries [][]byte) error {
	if len(entries) == 0 {
		return nil
	}
	values := make([]any, len(entries))
	for i, e := range entries {
		values[i] = e
	}
	if err := b.client.RPush(ctx, b.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to reinsert into secondary buffer: %w", err)
	}
	return nil
}

// Len returns the number of buffered entries.
func (b *RedisBuffer) Len(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read secondary buffer length: %w", err)
	}
	return n, nil
}

// Ping checks the Redis connection.
func (b *RedisBuffer) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying Redis client.
func (b *RedisBuffer) Close() error {
	return b.client.Close()
}
