package dlq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// DefaultBasePath is used when NewQueue is given an empty path.
const DefaultBasePath = "/var/lib/accesslog/dlq"

const (
	filePrefix = "failed_"
	plainExt   = ".json"
	gzipExt    = ".json.gz"
)

// Queue writes failed batches as gzipped JSON files under a directory.
// File names are failed_<unix-nanos>_<sequence>.json.gz and sort by time.
// Uncompressed .json files are still read.
type Queue struct {
	basePath string
	written  atomic.Uint64
	logger   *slog.Logger
}

// NewQueue creates a file-backed DLQ, creating basePath if needed.
func NewQueue(basePath string) (*Queue, error) {
	if basePath == "" {
		basePath = DefaultBasePath
	}
	if err := os.MkdirAll(basePath, 0o750); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	return &Queue{
		basePath: basePath,
		logger:   logging.Component(nil, "dlq"),
	}, nil
}

// Write stores one failed batch. A nil queue discards it.
func (q *Queue) Write(_ context.Context, records []models.EventRecord, reason string, cause error) error {
	if q == nil || len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(newFailedBatch(records, reason, cause)); err != nil {
		return fmt.Errorf("encode dlq entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress dlq entry: %w", err)
	}
	data := buf.Bytes()

	seq := q.written.Add(1)
	name := fmt.Sprintf("%s%d_%d%s", filePrefix, time.Now().UnixNano(), seq, gzipExt)
	path := filepath.Join(q.basePath, name)

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write dlq file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit dlq file: %w", err)
	}

	q.logger.Warn("dead-lettered batch",
		logging.Reason(reason),
		logging.BatchSize(len(records)),
		slog.String("file", name),
	)
	return nil
}

// Stats reports the number of written and pending files.
func (q *Queue) Stats(context.Context) map[string]any {
	if q == nil {
		return map[string]any{"enabled": false, "backend": "file"}
	}

	files, err := q.files()
	stats := map[string]any{
		"enabled":       true,
		"backend":       "file",
		"written":       q.written.Load(),
		"pending_files": len(files),
		"base_path":     q.basePath,
	}
	if err != nil {
		stats["error"] = err.Error()
	}
	return stats
}

// List returns up to limit failed batches, oldest first.
func (q *Queue) List(_ context.Context, limit int) ([]FailedBatch, error) {
	if q == nil {
		return nil, ErrNotEnabled
	}
	if limit <= 0 {
		limit = 100
	}

	files, err := q.files()
	if err != nil {
		return nil, err
	}

	batches := make([]FailedBatch, 0, min(limit, len(files)))
	for _, name := range files {
		if len(batches) == limit {
			break
		}
		fb, err := q.read(name)
		if err != nil {
			q.logger.Warn("failed to read dlq file", slog.String("file", name), logging.Error(err))
			continue
		}
		batches = append(batches, fb)
	}
	return batches, nil
}

func (q *Queue) read(name string) (FailedBatch, error) {
	f, err := os.Open(filepath.Join(q.basePath, name))
	if err != nil {
		return FailedBatch{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(name, gzipExt) {
		zr, err := gzip.NewReader(f)
		if err != nil {
			return FailedBatch{}, fmt.Errorf("open gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var fb FailedBatch
	if err := json.NewDecoder(r).Decode(&fb); err != nil {
		return FailedBatch{}, fmt.Errorf("decode: %w", err)
	}
	return fb, nil
}

// Purge removes every failed batch.
func (q *Queue) Purge(context.Context) error {
	if q == nil {
		return ErrNotEnabled
	}

	files, err := q.files()
	if err != nil {
		return err
	}
	for _, name := range files {
		if err := os.Remove(filepath.Join(q.basePath, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete dlq file: %w", err)
		}
	}
	q.logger.Info("purged dlq", slog.Int("files", len(files)))
	return nil
}

// files returns committed DLQ file names in time order.
func (q *Queue) files() ([]string, error) {
	entries, err := os.ReadDir(q.basePath)
	if err != nil {
		return nil, fmt.Errorf("read dlq directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) ||
			!(strings.HasSuffix(name, plainExt) || strings.HasSuffix(name, gzipExt)) {
			continue
		}
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ti, tj := fileTimestamp(names[i]), fileTimestamp(names[j])
		if ti != tj {
			return ti < tj
		}
		return names[i] < names[j]
	})
	return names, nil
}

// fileTimestamp reads <unix-nanos> from failed_<unix-nanos>_<seq>.json[.gz].
func fileTimestamp(name string) int64 {
	rest := strings.TrimPrefix(name, filePrefix)
	ts, _, _ := strings.Cut(rest, "_")
	n, _ := strconv.ParseInt(ts, 10, 64)
	return n
}
