package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/accesslog/common/database"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

const (
	insertColumns = 7

	// DefaultChunkSize keeps a single INSERT well below the 65535 bind
	// parameter limit.
	DefaultChunkSize = 1000
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultPoolConfig returns the pool sizing used in production.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: time.Minute,
	}
}

// Postgres stores access events in the access_logs table.
type Postgres struct {
	pool      *pgxpool.Pool
	chunkSize int
}

// NewPostgres connects to connString and verifies the connection.
func NewPostgres(ctx context.Context, connString string, poolCfg PoolConfig) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if poolCfg.MaxConns > 0 {
		config.MaxConns = poolCfg.MaxConns
	}
	if poolCfg.MinConns > 0 {
		config.MinConns = poolCfg.MinConns
	}
	if poolCfg.MaxConnLifetime > 0 {
		config.MaxConnLifetime = poolCfg.MaxConnLifetime
	}
	if poolCfg.MaxConnIdleTime > 0 {
		config.MaxConnIdleTime = poolCfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool, chunkSize: DefaultChunkSize}, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()
	return s.pool.Ping(ctx)
}

// BulkInsert writes records in chunks inside one transaction. Rows whose ID
// already exists are skipped. Errors are classified for the retry policy.
func (s *Postgres) BulkInsert(ctx context.Context, records []models.EventRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, Classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted int64
	for start := 0; start < len(records); start += s.chunkSize {
		end := min(start+s.chunkSize, len(records))
		query, args := buildInsert(records[start:end])

		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return 0, Classify(fmt.Errorf("insert access logs: %w", err))
		}
		inserted += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, Classify(fmt.Errorf("commit access logs: %w", err))
	}
	return inserted, nil
}

// buildInsert renders a multi-row insert-ignore statement.
func buildInsert(records []models.EventRecord) (string, []any) {
	var b strings.Builder
	b.WriteString(`INSERT INTO access_logs (id, client_ip, ip_type, request_path, request_method, user_agent, observed_at) VALUES `)

	args := make([]any, 0, len(records)*insertColumns)
	for i, r := range records {
		if i > 0 {
			b.WriteString(", ")
		}
		base := i * insertColumns
		fmt.Fprintf(&b, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)

		var userAgent *string
		if r.UserAgent != "" {
			userAgent = &r.UserAgent
		}
		args = append(args, r.ID, r.ClientIP, string(r.IPType), r.RequestPath, r.RequestMethod, userAgent, r.ObservedAt)
	}
	b.WriteString(" ON CONFLICT (id) DO NOTHING")
	return b.String(), args
}

const selectColumns = `id::text, client_ip, COALESCE(ip_type, ''), request_path, request_method, user_agent, observed_at, create_time`

// ListRecent returns records newest first.
func (s *Postgres) ListRecent(ctx context.Context, limit, offset int) ([]models.AccessLog, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM access_logs ORDER BY observed_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs: %w", err)
	}
	return collectLogs(rows)
}

// ListByIP returns records for one client IP, newest first.
func (s *Postgres) ListByIP(ctx context.Context, ip string, limit, offset int) ([]models.AccessLog, error) {
	ctx, cancel := database.ReadContext(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT `+selectColumns+` FROM access_logs WHERE client_ip = $1 ORDER BY observed_at DESC, id DESC LIMIT $2 OFFSET $3`,
		ip, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list access logs for %s: %w", ip, err)
	}
	return collectLogs(rows)
}

func collectLogs(rows pgx.Rows) ([]models.AccessLog, error) {
	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AccessLog, error) {
		var (
			l         models.AccessLog
			ipType    string
			userAgent *string
		)
		if err := row.Scan(&l.ID, &l.ClientIP, &ipType, &l.RequestPath, &l.RequestMethod, &userAgent, &l.ObservedAt, &l.CreateTime); err != nil {
			return l, err
		}
		l.IPType = models.IPType(ipType)
		if userAgent != nil {
			l.UserAgent = *userAgent
		}
		return l, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan access logs: %w", err)
	}
	return logs, nil
}
