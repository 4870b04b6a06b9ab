// Package ratelimit throttles access-log endpoints per client IP with a
// Redis sliding window shared by every ingest instance.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/accesslog/ingest/internal/metrics"
)

// KeyPrefix namespaces rate-limit keys in Redis.
const KeyPrefix = "accesslog:ratelimit:"

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed bool
	// Limit is the budget per window; zero means unlimited.
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest request leaves the window.
	// Only set when Allowed is false.
	RetryAfter time.Duration
}

// Limiter admits or rejects requests for a key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// Unlimited admits everything.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Decision, error) {
	return Decision{Allowed: true}, nil
}

// admit keeps one sorted-set member per admitted request, scored by its
// time in nanoseconds. It returns {admitted, count, oldest score}.
var admit = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, 0, window_start)

	local admitted = 0
	local count = redis.call('ZCARD', key)
	if count < limit then
		redis.call('ZADD', key, now, ARGV[5])
		redis.call('EXPIRE', key, ttl)
		admitted = 1
		count = count + 1
	end

	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local oldest_score = '0'
	if #oldest == 2 then
		oldest_score = oldest[2]
	end
	return {admitted, count, oldest_score}
`)

// SlidingWindow is a Limiter backed by one Redis sorted set per key.
type SlidingWindow struct {
	client redis.Scripter
	limit  int
	window time.Duration
	now    func() time.Time
	seq    atomic.Uint64
}

// NewSlidingWindow allows limit requests per key in any window-long span.
// The client is borrowed and not closed.
func NewSlidingWindow(client redis.Scripter, limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		client: client,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func (s *SlidingWindow) Allow(ctx context.Context, key string) (Decision, error) {
	now := s.now()
	nowNs := now.UnixNano()
	ttl := max(int64(s.window/time.Second), 1)
	member := strconv.FormatInt(nowNs, 10) + "-" + strconv.FormatUint(s.seq.Add(1), 10)

	res, err := admit.Run(ctx, s.client, []string{KeyPrefix + key},
		nowNs, nowNs-s.window.Nanoseconds(), s.limit, ttl, member).Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit check: unexpected reply %v", res)
	}

	admitted, _ := res[0].(int64)
	count, _ := res[1].(int64)
	d := Decision{
		Allowed:   admitted == 1,
		Limit:     s.limit,
		Remaining: max(s.limit-int(count), 0),
	}
	if d.Allowed {
		return d, nil
	}

	metrics.RateLimitHits.Inc()
	d.RetryAfter = s.window
	if raw, ok := res[2].(string); ok {
		if oldest, err := strconv.ParseFloat(raw, 64); err == nil && oldest > 0 {
			expires := time.Unix(0, int64(oldest)).Add(s.window)
			d.RetryAfter = max(expires.Sub(now), 0)
		}
	}
	return d, nil
}
