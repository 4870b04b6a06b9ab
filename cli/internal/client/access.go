package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ClientInfo is what the service recorded for a /ip/my call.
type ClientInfo struct {
	ClientIP      string    `json:"clientIp"`
	IPType        string    `json:"ipType"`
	RequestPath   string    `json:"requestPath"`
	RequestMethod string    `json:"requestMethod"`
	UserAgent     string    `json:"userAgent,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AccessLog is one persisted access record.
type AccessLog struct {
	ID            string    `json:"id"`
	ClientIP      string    `json:"clientIp"`
	IPType        string    `json:"ipType"`
	RequestPath   string    `json:"requestPath"`
	RequestMethod string    `json:"requestMethod"`
	UserAgent     string    `json:"userAgent,omitempty"`
	ObservedAt    time.Time `json:"observedAt"`
	CreateTime    time.Time `json:"createTime"`
}

// Status is the write-back pipeline snapshot served by /ip/status.
type Status struct {
	QueueLength       int        `json:"queueLength"`
	MaxSize           int        `json:"maxSize"`
	IsFlushing        bool       `json:"isFlushing"`
	SinkAvailable     bool       `json:"sinkAvailable"`
	SecondaryEnabled  bool       `json:"secondaryEnabled"`
	TotalEnqueued     int64      `json:"totalEnqueued"`
	TotalPersisted    int64      `json:"totalPersisted"`
	TotalFailed       int64      `json:"totalFailed"`
	TotalDropped      int64      `json:"totalDropped"`
	TotalReadmitted   int64      `json:"totalReadmitted"`
	SecondaryAppended int64      `json:"secondaryAppended"`
	SecondaryDrained  int64      `json:"secondaryDrained"`
	AverageLatencyMs  float64    `json:"averageLatency"`
	LastBatchSize     int        `json:"lastBatchSize"`
	LastBatchTime     *time.Time `json:"lastBatchTime,omitempty"`
}

// IPStats is the per-client usage summary served by /ip/stats.
type IPStats struct {
	ClientIP         string            `json:"clientIp"`
	LastSeenAt       *time.Time        `json:"lastSeenAt,omitempty"`
	LastPath         string            `json:"lastPath,omitempty"`
	TotalRequests    int64             `json:"totalRequests"`
	RequestsLastHour int64             `json:"requestsLastHour"`
	RequestsLast24h  int64             `json:"requestsLast24h"`
	DistinctPaths    int64             `json:"distinctPathsToday"`
	IngestInstances  map[string]string `json:"ingestInstances,omitempty"`
}

// FailedBatch is one dead-lettered batch.
type FailedBatch struct {
	Timestamp time.Time         `json:"timestamp"`
	Reason    string            `json:"reason"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Count     int               `json:"count"`
	Records   []json.RawMessage `json:"records"`
}

// ListOptions selects a page of access logs. An empty IP lists all clients.
type ListOptions struct {
	IP     string
	Limit  int
	Offset int
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// AccessClient talks to the access log service HTTP API.
type AccessClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

func NewAccessClient(baseURL string) *AccessClient {
	return &AccessClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "accessctl",
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// WithHTTPClient replaces the transport, mostly for tests and seeding.
func (c *AccessClient) WithHTTPClient(hc *http.Client) *AccessClient {
	c.client = hc
	return c
}

// MyIP calls /ip/my. A non-empty forwardedFor is sent as X-Forwarded-For
// and userAgent overrides the default User-Agent.
func (c *AccessClient) MyIP(ctx context.Context, forwardedFor, userAgent string) (*ClientInfo, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ip/my", nil)
	if err != nil {
		return nil, err
	}
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	var info ClientInfo
	if err := c.doEnvelope(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Logs lists persisted access logs, newest first.
func (c *AccessClient) Logs(ctx context.Context, opts ListOptions) ([]AccessLog, error) {
	q := url.Values{}
	path := "/ip/get-all-logs"
	if opts.IP != "" {
		path = "/ip/get-logs-by-ip"
		q.Set("ip", opts.IP)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}

	req, err := c.newRequest(ctx, http.MethodGet, path, q)
	if err != nil {
		return nil, err
	}
	var logs []AccessLog
	if err := c.doEnvelope(req, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Status returns the pipeline snapshot.
func (c *AccessClient) Status(ctx context.Context) (*Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ip/status", nil)
	if err != nil {
		return nil, err
	}
	var status Status
	if err := c.doJSON(req, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Ready returns the readiness body. A not-ready service is not an error;
// ready reports it.
func (c *AccessClient) Ready(ctx context.Context) (body map[string]any, ready bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/readyz", nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reach service: %w", err)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("failed to decode readiness: %w", err)
	}
	return body, resp.StatusCode == http.StatusOK, nil
}

// IPStats returns usage counters for ip; empty means the caller.
func (c *AccessClient) IPStats(ctx context.Context, ip string) (*IPStats, error) {
	q := url.Values{}
	if ip != "" {
		q.Set("ip", ip)
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/ip/stats", q)
	if err != nil {
		return nil, err
	}
	var stats IPStats
	if err := c.doEnvelope(req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ActiveIPs lists client IPs seen today.
func (c *AccessClient) ActiveIPs(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ip/active", nil)
	if err != nil {
		return nil, err
	}
	var ips []string
	if err := c.doEnvelope(req, &ips); err != nil {
		return nil, err
	}
	return ips, nil
}

func (c *AccessClient) DLQStats(ctx context.Context) (map[string]any, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/dlq/stats", nil)
	if err != nil {
		return nil, err
	}
	var stats map[string]any
	if err := c.doJSON(req, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (c *AccessClient) DLQList(ctx context.Context, limit int) ([]FailedBatch, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/dlq", q)
	if err != nil {
		return nil, err
	}
	var page struct {
		Batches []FailedBatch `json:"batches"`
		Count   int           `json:"count"`
	}
	if err := c.doJSON(req, &page); err != nil {
		return nil, err
	}
	return page.Batches, nil
}

func (c *AccessClient) DLQPurge(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/dlq", nil)
	if err != nil {
		return err
	}
	return c.doJSON(req, nil)
}

func (c *AccessClient) newRequest(ctx context.Context, method, path string, q url.Values) (*http.Request, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// doEnvelope decodes the data field of a {success, message, data} body.
func (c *AccessClient) doEnvelope(req *http.Request, out any) error {
	var env envelope
	if err := c.doJSON(req, &env); err != nil {
		return err
	}
	if !env.Success {
		return &APIError{StatusCode: http.StatusOK, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// doJSON sends req and decodes a 2xx body into out. A nil out discards it.
func (c *AccessClient) doJSON(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var env envelope
	if json.Unmarshal(body, &env) == nil {
		apiErr.Message = env.Message
		if apiErr.Message == "" {
			apiErr.Message = env.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
