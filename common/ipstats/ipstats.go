// Package ipstats provides Redis-backed per-client access statistics.
//
// Designed for multiple ingest instances writing concurrently. Stats are
// accumulated in memory by a Collector and flushed in batches; any service
// can read them back.
//
// Redis Key Structure:
//
//	{prefix}:ipstats:{ip}               - Hash with last_seen_at, last_path, total_requests
//	{prefix}:iphourly:{ip}:{YYYYMMDDHH} - Request count for a specific hour (expires 48h)
//	{prefix}:ipdaily:{ip}:{YYYYMMDD}    - Request count for a specific day (expires 7d)
//	{prefix}:ippaths:{ip}:{YYYYMMDD}    - Set of distinct paths for the day (expires 7d)
//	{prefix}:ipinstances:{ip}           - Hash of ingest instance -> last seen timestamp
//	{prefix}:active:{YYYYMMDD}          - Set of client IPs seen that day (expires 7d)
package ipstats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	hourlyTTL    = 48 * time.Hour
	dailyTTL     = 7 * 24 * time.Hour
	instancesTTL = 24 * time.Hour
)

// Stats is the usage summary for one client IP.
type Stats struct {
	ClientIP         string            `json:"clientIp"`
	LastSeenAt       *time.Time        `json:"lastSeenAt,omitempty"`
	LastPath         string            `json:"lastPath,omitempty"`
	TotalRequests    int64             `json:"totalRequests"`
	RequestsLastHour int64             `json:"requestsLastHour"`
	RequestsLast24h  int64             `json:"requestsLast24h"`
	DistinctPaths    int64             `json:"distinctPathsToday"`
	IngestInstances  map[string]string `json:"ingestInstances,omitempty"`
	RetrievedAt      time.Time         `json:"retrievedAt"`
}

// Client records and reads per-IP statistics.
type Client struct {
	redis      *redis.Client
	prefix     string
	instanceID string
	now        func() time.Time
}

// NewClient connects to redisURL. instanceID should be unique per ingest
// instance (hostname plus pid, pod name).
func NewClient(redisURL, prefix, instanceID string) (*Client, error) {
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

	return NewClientFromRedis(client, prefix, instanceID), nil
}

// NewClientFromRedis creates a client from an existing Redis connection.
func NewClientFromRedis(client *redis.Client, prefix, instanceID string) *Client {
	if prefix == "" {
		prefix = "accesslog"
	}
	return &Client{
		redis:      client,
		prefix:     prefix,
		instanceID: instanceID,
		now:        time.Now,
	}
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// BatchUpdate holds accumulated requests from one client IP.
type BatchUpdate struct {
	ClientIP string
	Requests int64
	Paths    map[string]struct{}
	LastPath string
}

// NewBatchUpdate creates an empty accumulator for ip.
func NewBatchUpdate(ip string) *BatchUpdate {
	return &BatchUpdate{ClientIP: ip, Paths: make(map[string]struct{})}
}

// Add accumulates one request.
func (b *BatchUpdate) Add(path string) {
	b.Requests++
	if path != "" {
		b.Paths[path] = struct{}{}
		b.LastPath = path
	}
}

// merge folds other into b.
func (b *BatchUpdate) merge(other *BatchUpdate) {
	b.Requests += other.Requests
	for p := range other.Paths {
		b.Paths[p] = struct{}{}
	}
	if other.LastPath != "" {
		b.LastPath = other.LastPath
	}
}

// FlushBatch writes accumulated batch stats to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *BatchUpdate) error {
	if batch.Requests == 0 {
		return nil
	}

	now := c.now()
	hourKey := now.UTC().Format("2006010215")
	dayKey := now.UTC().Format("20060102")
	nowUnix := strconv.FormatInt(now.Unix(), 10)
	ip := batch.ClientIP

	pipe := c.redis.Pipeline()

	statsKey := c.key("ipstats", ip)
	fields := map[string]any{"last_seen_at": nowUnix}
	if batch.LastPath != "" {
		fields["last_path"] = batch.LastPath
	}
	pipe.HSet(ctx, statsKey, fields)
	pipe.HIncrBy(ctx, statsKey, "total_requests", batch.Requests)

	hourlyKey := c.key("iphourly", ip, hourKey)
	pipe.IncrBy(ctx, hourlyKey, batch.Requests)
	pipe.Expire(ctx, hourlyKey, hourlyTTL)

	dailyKey := c.key("ipdaily", ip, dayKey)
	pipe.IncrBy(ctx, dailyKey, batch.Requests)
	pipe.Expire(ctx, dailyKey, dailyTTL)

	if len(batch.Paths) > 0 {
		pathsKey := c.key("ippaths", ip, dayKey)
		paths := make([]any, 0, len(batch.Paths))
		for p := range batch.Paths {
			paths = append(paths, p)
		}
		pipe.SAdd(ctx, pathsKey, paths...)
		pipe.Expire(ctx, pathsKey, dailyTTL)
	}

	activeKey := c.key("active", dayKey)
	pipe.SAdd(ctx, activeKey, ip)
	pipe.Expire(ctx, activeKey, dailyTTL)

	if c.instanceID != "" {
		instancesKey := c.key("ipinstances", ip)
		pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
		pipe.Expire(ctx, instancesKey, instancesTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush ip stats: %w", err)
	}
	return nil
}

// GetStats retrieves current statistics for one client IP.
func (c *Client) GetStats(ctx context.Context, ip string) (*Stats, error) {
	now := c.now()
	dayKey := now.UTC().Format("20060102")

	pipe := c.redis.Pipeline()

	statsCmd := pipe.HGetAll(ctx, c.key("ipstats", ip))

	// Last 24 hours, newest first
	hourlyCmds := make([]*redis.StringCmd, 24)
	for i := range hourlyCmds {
		t := now.Add(-time.Duration(i) * time.Hour).UTC()
		hourlyCmds[i] = pipe.Get(ctx, c.key("iphourly", ip, t.Format("2006010215")))
	}

	pathsCmd := pipe.SCard(ctx, c.key("ippaths", ip, dayKey))
	instancesCmd := pipe.HGetAll(ctx, c.key("ipinstances", ip))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get ip stats: %w", err)
	}

	stats := &Stats{
		ClientIP:        ip,
		RetrievedAt:     now,
		IngestInstances: make(map[string]string),
	}

	if fields, err := statsCmd.Result(); err == nil {
		if v, ok := fields["last_seen_at"]; ok {
			if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
				t := time.Unix(unix, 0).UTC()
				stats.LastSeenAt = &t
			}
		}
		stats.LastPath = fields["last_path"]
		if v, ok := fields["total_requests"]; ok {
			stats.TotalRequests, _ = strconv.ParseInt(v, 10, 64)
		}
	}

	for i, cmd := range hourlyCmds {
		val, err := cmd.Int64()
		if err != nil {
			continue
		}
		if i == 0 {
			stats.RequestsLastHour = val
		}
		stats.RequestsLast24h += val
	}

	if val, err := pathsCmd.Result(); err == nil {
		stats.DistinctPaths = val
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.IngestInstances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ActiveIPs returns the client IPs seen on the current UTC day.
func (c *Client) ActiveIPs(ctx context.Context) ([]string, error) {
	ips, err := c.redis.SMembers(ctx, c.key("active", c.now().UTC().Format("20060102"))).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active ips: %w", err)
	}
	return ips, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
