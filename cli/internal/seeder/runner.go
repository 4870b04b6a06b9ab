package seeder

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/accesslog/cli/internal/client"
)

// Result summarizes a seeding run.
type Result struct {
	Sent        int64
	Failed      int64
	RateLimited int64
	Clients     int
	Elapsed     time.Duration
	// ByIP counts accepted requests per client IP as echoed by the service.
	ByIP map[string]int64
}

// Runner handles the traffic seeding execution
type Runner struct {
	Config *Config
	Client *client.AccessClient

	// Progress, when set, is called after each request.
	Progress func(done, total int64)
}

// NewRunner creates a new seeder runner
func NewRunner(config *Config, c *client.AccessClient) *Runner {
	return &Runner{Config: config, Client: c}
}

// Run sends Count requests to /ip/my with spoofed client addresses. It
// stops early only when ctx is cancelled.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	d := r.Config.Defaults
	gen := NewGenerator(d.ClientPool, d.IPv6Ratio, d.Seed)

	requests := make([]Request, d.Count)
	for i := range requests {
		requests[i] = gen.Next()
	}

	res := &Result{ByIP: make(map[string]int64)}
	var (
		mu                          sync.Mutex
		sent, failed, limited, done atomic.Int64
	)

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Concurrency)

	for i, req := range requests {
		if gctx.Err() != nil {
			break
		}
		if d.Interval > 0 && i > 0 {
			select {
			case <-gctx.Done():
			case <-time.After(d.Interval):
			}
		}

		g.Go(func() error {
			info, err := r.Client.MyIP(gctx, req.ClientIP, req.UserAgent)
			switch {
			case err == nil:
				sent.Add(1)
				mu.Lock()
				res.ByIP[info.ClientIP]++
				mu.Unlock()
			case isRateLimited(err):
				limited.Add(1)
			default:
				failed.Add(1)
			}
			n := done.Add(1)
			if r.Progress != nil {
				r.Progress(n, int64(len(requests)))
			}
			return nil
		})
	}

	_ = g.Wait()
	res.Sent, res.Failed, res.RateLimited = sent.Load(), failed.Load(), limited.Load()
	res.Clients = len(res.ByIP)
	res.Elapsed = time.Since(start)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func isRateLimited(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
