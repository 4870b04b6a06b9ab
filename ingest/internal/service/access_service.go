// Package service turns HTTP-level access information into event records
// and serves the read side of the access log.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/ipaddr"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// Column widths of the access_logs table.
const (
	maxIPLength     = 45
	maxMethodLength = 10
)

// ErrIPRequired is returned when a by-IP lookup has no address.
var ErrIPRequired = errors.New("ip is required")

// Pipeline is the write-back pipeline as seen by the service.
type Pipeline interface {
	Enqueue(rec models.EventRecord)
	Status() models.Status
}

// LogReader is the query side of the sink.
type LogReader interface {
	ListRecent(ctx context.Context, limit, offset int) ([]models.AccessLog, error)
	ListByIP(ctx context.Context, ip string, limit, offset int) ([]models.AccessLog, error)
}

// Recorder receives every logged access for usage statistics.
type Recorder interface {
	Record(ip, path string)
}

// Options bound what callers may store and request.
type Options struct {
	MaxPathLength    int
	DefaultListLimit int
	MaxListLimit     int
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxPathLength:    2048,
		DefaultListLimit: 100,
		MaxListLimit:     1000,
	}
}

// Access describes one observed request.
type Access struct {
	ClientIP  string
	Path      string
	Method    string
	UserAgent string
}

type AccessLogService struct {
	pipeline Pipeline
	logs     LogReader
	recorder Recorder
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

func NewAccessLogService(pipeline Pipeline, logs LogReader, opts Options, logger *slog.Logger) *AccessLogService {
	defaults := DefaultOptions()
	if opts.MaxPathLength <= 0 {
		opts.MaxPathLength = defaults.MaxPathLength
	}
	if opts.DefaultListLimit <= 0 {
		opts.DefaultListLimit = defaults.DefaultListLimit
	}
	if opts.MaxListLimit < opts.DefaultListLimit {
		opts.MaxListLimit = max(defaults.MaxListLimit, opts.DefaultListLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccessLogService{
		pipeline: pipeline,
		logs:     logs,
		opts:     opts,
		now:      time.Now,
		logger:   logging.Component(logger, "access_service"),
	}
}

// SetRecorder attaches a usage recorder. Call before serving traffic.
func (s *AccessLogService) SetRecorder(r Recorder) {
	s.recorder = r
}

// LogAccess records an access and returns the enqueued record. It never
// waits on the database.
func (s *AccessLogService) LogAccess(a Access) models.EventRecord {
	addr := ipaddr.Classify(a.ClientIP)
	if addr.Address == "" {
		addr = ipaddr.Classify(ipaddr.Unknown)
	}

	rec := models.NewEventRecord(
		truncate(addr.Address, maxIPLength),
		addr.Kind,
		truncate(a.Path, s.opts.MaxPathLength),
		truncate(strings.ToUpper(a.Method), maxMethodLength),
		a.UserAgent,
		s.now(),
	)
	s.pipeline.Enqueue(rec)
	if s.recorder != nil {
		s.recorder.Record(rec.ClientIP, rec.RequestPath)
	}

	s.logger.Debug("access logged",
		logging.EventID(rec.ID),
		logging.IP(rec.ClientIP),
		logging.Method(rec.RequestMethod),
		logging.Path(rec.RequestPath),
	)
	return rec
}

// ListLogs returns persisted records, newest first.
func (s *AccessLogService) ListLogs(ctx context.Context, limit, offset int) ([]models.AccessLog, error) {
	logs, err := s.logs.ListRecent(ctx, s.clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list access logs: %w", err)
	}
	return logs, nil
}

// ListLogsByIP returns persisted records for one client address, newest
// first. IPv4-mapped addresses match their IPv4 form.
func (s *AccessLogService) ListLogsByIP(ctx context.Context, ip string, limit, offset int) ([]models.AccessLog, error) {
	addr := ipaddr.Classify(ip)
	if addr.Address == "" {
		return nil, ErrIPRequired
	}
	logs, err := s.logs.ListByIP(ctx, addr.Address, s.clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list access logs for %s: %w", addr.Address, err)
	}
	return logs, nil
}

// Status reports the pipeline snapshot.
func (s *AccessLogService) Status() models.Status {
	return s.pipeline.Status()
}

func (s *AccessLogService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.DefaultListLimit
	}
	return min(limit, s.opts.MaxListLimit)
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
