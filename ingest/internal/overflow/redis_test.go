package overflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
	"github.com/telhawk-systems/accesslog/ingest/internal/writeback"
)

var _ writeback.SecondaryBuffer = (*RedisBuffer)(nil)

func setupTestRedis(t *testing.T, opts ...Option) (*miniredis.Miniredis, *RedisBuffer) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	buf := NewRedisBufferFromClient(client, "test", opts...)
	t.Cleanup(func() { _ = buf.Close() })
	return mr, buf
}

func TestNewRedisBuffer(t *testing.T) {
	mr := miniredis.RunT(t)

	buf, err := NewRedisBuffer("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	defer buf.Close()
	assert.Equal(t, "accesslog:events", buf.Key())

	_, err = NewRedisBuffer("not-a-valid-url", "")
	assert.Error(t, err)
}

func TestRedisBuffer_AppendAndDrain(t *testing.T) {
	mr, buf := setupTestRedis(t)
	ctx := context.Background()

	rec := models.NewEventRecord("10.0.0.1", models.IPv4, "/ip/my", "GET", "ua", time.Now())
	payload, err := json.Marshal(rec)
	require.NoError(t, err)

	require.NoError(t, buf.Append(ctx, payload))
	require.NoError(t, buf.Append(ctx, []byte(`{"id":"second"}`)))

	n, err := buf.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := buf.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.JSONEq(t, string(payload), string(entries[0]))
	assert.Equal(t, `{"id":"second"}`, string(entries[1]))
	assert.False(t, mr.Exists("test:events"))

	entries, err = buf.DrainAll(ctx)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRedisBuffer_DrainLimit(t *testing.T) {
	_, buf := setupTestRedis(t, WithMaxDrain(2))
	ctx := context.Background()

	for _, e := range []string{"a", "b", "c"} {
		require.NoError(t, buf.Append(ctx, []byte(e)))
	}

	entries, err := buf.DrainAll(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", string(entries[0]))
	assert.Equal(t, "b", string(entries[1]))

	n, err := buf.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisBuffer_Reinsert(t *testing.T) {
	mr, buf := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, buf.Reinsert(ctx, nil))
	assert.False(t, mr.Exists("test:events"))

	require.NoError(t, buf.Reinsert(ctx, [][]byte{[]byte("x"), []byte("y")}))
	list, err := mr.List("test:events")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, list)
}

func TestRedisBuffer_Unavailable(t *testing.T) {
	mr, buf := setupTestRedis(t)
	ctx := context.Background()
	mr.Close()

	assert.Error(t, buf.Append(ctx, []byte("x")))
	_, err := buf.DrainAll(ctx)
	assert.Error(t, err)
	assert.Error(t, buf.Reinsert(ctx, [][]byte{[]byte("x")}))
	assert.Error(t, buf.Ping(ctx))
}

// The pipeline's drain protocol against a real list: a failed persist puts
// the original entries back, a later successful one empties the list.
func TestRedisBuffer_WithPipeline(t *testing.T) {
	_, buf := setupTestRedis(t)
	ctx := context.Background()

	rec := models.NewEventRecord("10.0.0.9", models.IPv4, "/", "GET", "", time.Now())
	payload, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, buf.Append(ctx, payload))

	sink := &flakySink{failures: 1}
	p, err := writeback.New(writeback.DefaultConfig(), sink, writeback.WithSecondary(buf))
	require.NoError(t, err)

	res, err := p.DrainSecondary(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, res.Reinserted)

	n, err := buf.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	res, err = p.DrainSecondary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Persisted)
	assert.Equal(t, []string{rec.ID}, sink.ids)

	n, err = buf.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type flakySink struct {
	failures int
	ids      []string
}

func (s *flakySink) BulkInsert(_ context.Context, records []models.EventRecord) (int64, error) {
	if s.failures > 0 {
		s.failures--
		return 0, writeback.NewTransientError(writeback.CodeConnectionRefused, assert.AnError)
	}
	for _, r := range records {
		s.ids = append(s.ids, r.ID)
	}
	return int64(len(records)), nil
}
