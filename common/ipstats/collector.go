package ipstats

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Collector accumulates per-IP requests and flushes them to Redis
// periodically. Safe for concurrent use from multiple goroutines.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*BatchUpdate // client IP -> batch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector creates a collector and starts its flush loop.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logger,
		batches:       make(map[string]*BatchUpdate),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()

	return c
}

// Record accumulates one request for later batch flushing.
func (c *Collector) Record(ip, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[ip]
	if !ok {
		batch = NewBatchUpdate(ip)
		c.batches[ip] = batch
	}
	batch.Add(path)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush writes all accumulated batches to Redis. Failed batches are merged
// back for the next attempt.
func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*BatchUpdate)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	var total int64

	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush ip stats batch",
				slog.String("client_ip", batch.ClientIP),
				slog.Int64("requests", batch.Requests),
				slog.String("error", err.Error()),
			)
			c.mu.Lock()
			if existing, ok := c.batches[batch.ClientIP]; ok {
				existing.merge(batch)
			} else {
				c.batches[batch.ClientIP] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
		total += batch.Requests
	}

	if flushed > 0 {
		c.logger.Debug("flushed ip stats",
			slog.Int("clients", flushed),
			slog.Int64("requests", total),
		)
	}
}

// FlushNow forces an immediate flush of all accumulated stats.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop stops the collector and flushes any remaining stats.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns per-IP request counts not yet flushed.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for ip, batch := range c.batches {
		out[ip] = batch.Requests
	}
	return out
}

// Client returns the underlying stats client for reads.
func (c *Collector) Client() *Client {
	return c.client
}
