package writeback

import (
	"errors"
	"math"
	"time"
)

// Config tunes the pipeline's buffering and flush behavior.
type Config struct {
	// MaxSize is the hard capacity of the in-memory queue.
	MaxSize int

	// MinBatchSize is the queue length at which a regular flush is considered.
	MinBatchSize int

	// BatchInterval is the timer period and the minimum spacing of regular flushes.
	BatchInterval time.Duration

	// ForceThreshold is the fraction of MaxSize that forces an immediate flush.
	ForceThreshold float64

	// FlushTimeout bounds each sink and secondary-buffer call.
	// Zero means twice BatchInterval.
	FlushTimeout time.Duration

	// SpillBacklog is how many spilled full-queue batches may wait for the flusher.
	SpillBacklog int

	// OverflowBacklog is how many records may wait for the secondary-buffer writer.
	OverflowBacklog int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxSize:         1000,
		MinBatchSize:    50,
		BatchInterval:   5 * time.Second,
		ForceThreshold:  0.8,
		SpillBacklog:    4,
		OverflowBacklog: 1024,
	}
}

var (
	ErrInvalidMaxSize        = errors.New("writeback: max size must be positive")
	ErrInvalidMinBatchSize   = errors.New("writeback: min batch size must be between 1 and max size")
	ErrInvalidBatchInterval  = errors.New("writeback: batch interval must be positive")
	ErrInvalidForceThreshold = errors.New("writeback: force threshold must be in (0, 1]")
)

// Validate checks the config and fills derived defaults.
func (c *Config) Validate() error {
	if c.MaxSize <= 0 {
		return ErrInvalidMaxSize
	}
	if c.MinBatchSize < 1 || c.MinBatchSize > c.MaxSize {
		return ErrInvalidMinBatchSize
	}
	if c.BatchInterval <= 0 {
		return ErrInvalidBatchInterval
	}
	if c.ForceThreshold <= 0 || c.ForceThreshold > 1 {
		return ErrInvalidForceThreshold
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = 2 * c.BatchInterval
	}
	if c.SpillBacklog < 1 {
		c.SpillBacklog = 1
	}
	if c.OverflowBacklog < 1 {
		c.OverflowBacklog = 1
	}
	return nil
}

// forceLength is the queue length that triggers a forced flush.
func (c Config) forceLength() int {
	n := int(math.Ceil(c.ForceThreshold*float64(c.MaxSize) - 1e-9))
	return max(n, 1)
}
