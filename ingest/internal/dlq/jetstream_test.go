package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/telhawk-systems/accesslog/common/messaging/nats"
	"github.com/telhawk-systems/accesslog/ingest/internal/dlq"
	"github.com/telhawk-systems/accesslog/ingest/internal/writeback"
)

// setupTestNATS starts a JetStream-enabled NATS server and connects to it.
func setupTestNATS(t *testing.T) *nats.Conn {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping NATS integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2.10-alpine",
			Cmd:          []string{"-js"},
			ExposedPorts: []string{"4222/tcp"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "failed to start NATS container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	url, err := container.PortEndpoint(ctx, "4222/tcp", "nats")
	require.NoError(t, err)

	cfg := nats.DefaultConfig()
	cfg.URL = url
	client, err := nats.Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestJetStreamQueue(t *testing.T) {
	js := setupTestNATS(t)
	ctx := context.Background()

	queue, err := dlq.NewJetStreamQueue(ctx, js, nil)
	require.NoError(t, err)

	cause := writeback.NewNonTransientError("22001", errors.New("value too long"))
	require.NoError(t, queue.Write(ctx, batch(2), writeback.ReasonNonTransient, cause))
	require.NoError(t, queue.Write(ctx, batch(1), writeback.ReasonCapacity, nil))

	stats := queue.Stats(ctx)
	assert.Equal(t, true, stats["enabled"])
	assert.Equal(t, uint64(2), stats["written_local"])
	assert.Equal(t, uint64(2), stats["total_messages"])

	all, err := queue.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, writeback.ReasonNonTransient, all[0].Reason)
	assert.Equal(t, "22001", all[0].Code)
	assert.Len(t, all[0].Records, 2)
	assert.Equal(t, writeback.ReasonCapacity, all[1].Reason)

	require.NoError(t, queue.Purge(ctx))
	all, err = queue.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestJetStreamQueue_Nil(t *testing.T) {
	ctx := context.Background()

	_, err := dlq.NewJetStreamQueue(ctx, nil, nil)
	assert.Error(t, err)

	var queue *dlq.JetStreamQueue
	assert.NoError(t, queue.Write(ctx, batch(1), "capacity", nil))
	assert.Equal(t, false, queue.Stats(ctx)["enabled"])
	_, err = queue.List(ctx, 1)
	assert.ErrorIs(t, err, dlq.ErrNotEnabled)
	assert.ErrorIs(t, queue.Purge(ctx), dlq.ErrNotEnabled)
}
