package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/accesslog/common/ipstats"
	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/common/messaging"
	"github.com/telhawk-systems/accesslog/ingest/internal/config"
	"github.com/telhawk-systems/accesslog/ingest/internal/dlq"
	"github.com/telhawk-systems/accesslog/ingest/internal/handlers"
	"github.com/telhawk-systems/accesslog/ingest/internal/models"
	"github.com/telhawk-systems/accesslog/ingest/internal/overflow"
	"github.com/telhawk-systems/accesslog/ingest/internal/ratelimit"
	"github.com/telhawk-systems/accesslog/ingest/internal/server"
	"github.com/telhawk-systems/accesslog/ingest/internal/service"
	"github.com/telhawk-systems/accesslog/ingest/internal/sink"
	"github.com/telhawk-systems/accesslog/ingest/internal/writeback"
	"github.com/telhawk-systems/accesslog/ingest/migrations"

	natsclient "github.com/telhawk-systems/accesslog/common/messaging/nats"
)

// store is the durable side of the pipeline plus the read API.
type store interface {
	writeback.Sink
	service.LogReader
	Ping(ctx context.Context) error
	Close()
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("ingest"))
	slog.SetDefault(logger)

	slog.Info("Starting access log service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var checks []handlers.Check

	// Primary store
	logs, err := openStore(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open access log store: %v", err)
	}
	defer logs.Close()
	checks = append(checks, handlers.Check{Name: "database", Fn: logs.Ping})

	// Shared Redis: secondary buffer, rate limiting, per-IP stats
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = connectRedis(ctx, cfg.Redis.URL)
		if err != nil {
			slog.Warn("Redis unavailable; continuing without secondary buffer, rate limiting or ip stats",
				slog.String("redis_url", cfg.Redis.URL),
				logging.Error(err),
			)
			rdb = nil
		} else {
			defer rdb.Close()
			checks = append(checks, handlers.Check{Name: "redis", Fn: func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			}})
		}
	} else {
		slog.Info("Redis disabled - secondary buffer, rate limiting and ip stats not available")
	}

	// Dead letter queue
	deadLetters, natsConn, err := openDLQ(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize dead letter queue: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
		checks = append(checks, handlers.Check{Name: "nats", Fn: func(context.Context) error {
			return messaging.Probe(natsConn)
		}})
	}

	// Write-back pipeline
	opts := []writeback.Option{writeback.WithLogger(logger)}
	if rdb != nil {
		var bufOpts []overflow.Option
		if cfg.Redis.MaxDrain > 0 {
			bufOpts = append(bufOpts, overflow.WithMaxDrain(cfg.Redis.MaxDrain))
		}
		buffer := overflow.NewRedisBufferFromClient(rdb, cfg.Redis.Prefix, bufOpts...)
		opts = append(opts, writeback.WithSecondary(buffer))
		slog.Info("Secondary buffer enabled", slog.String("key", buffer.Key()))
	}
	if deadLetters != nil {
		opts = append(opts, writeback.WithDeadLetter(deadLetters))
	}

	pipeline, err := writeback.New(writeback.Config{
		MaxSize:         cfg.Writeback.MaxSize,
		MinBatchSize:    cfg.Writeback.MinBatchSize,
		BatchInterval:   cfg.Writeback.BatchInterval,
		ForceThreshold:  cfg.Writeback.ForceThreshold,
		FlushTimeout:    cfg.Writeback.FlushTimeout,
		SpillBacklog:    cfg.Writeback.SpillBacklog,
		OverflowBacklog: cfg.Writeback.OverflowBacklog,
	}, logs, opts...)
	if err != nil {
		log.Fatalf("Invalid write-back configuration: %v", err)
	}
	pipeline.Start(ctx)

	accessService := service.NewAccessLogService(pipeline, logs, service.Options{
		MaxPathLength:    cfg.Ingestion.MaxPathLength,
		DefaultListLimit: cfg.Ingestion.DefaultListLimit,
		MaxListLimit:     cfg.Ingestion.MaxListLimit,
	}, logger)

	routerOpts := server.Options{
		Access:      handlers.NewAccessHandler(accessService, logger),
		Health:      handlers.NewHealthHandler(func() any { return pipeline.Status() }, checks...),
		CORSOrigins: cfg.Server.CORSAllowedOrigins,
		Logger:      logger,
	}
	if deadLetters != nil {
		routerOpts.DLQ = handlers.NewDLQHandler(deadLetters, logger)
	}
	if cfg.Ingestion.CaptureAllRequests {
		routerOpts.Capture = accessService
		slog.Info("Capturing all requests")
	}

	// Rate limiting
	if rdb != nil && cfg.Ingestion.RateLimitEnabled {
		routerOpts.Limiter = ratelimit.NewSlidingWindow(rdb, cfg.Ingestion.RateLimitRequests, cfg.Ingestion.RateLimitWindow)
		routerOpts.RateLimitWindow = cfg.Ingestion.RateLimitWindow
		slog.Info("Rate limiting enabled",
			slog.Int("requests", cfg.Ingestion.RateLimitRequests),
			slog.Duration("window", cfg.Ingestion.RateLimitWindow),
		)
	} else if !cfg.Ingestion.RateLimitEnabled {
		slog.Info("Rate limiting disabled in configuration")
	}

	// Per-IP usage stats
	var statsCollector *ipstats.Collector
	if rdb != nil && cfg.IPStats.Enabled {
		hostname, _ := os.Hostname()
		instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

		statsClient := ipstats.NewClientFromRedis(rdb, cfg.Redis.Prefix, instanceID)
		statsCollector = ipstats.NewCollector(statsClient, cfg.IPStats.FlushInterval, logger)
		accessService.SetRecorder(statsCollector)
		routerOpts.Stats = handlers.NewIPStatsHandler(statsClient, logger)
		slog.Info("IP stats collector enabled",
			slog.Duration("flush_interval", cfg.IPStats.FlushInterval),
			slog.String("instance", instanceID),
		)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.NewRouter(routerOpts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Access log service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
	}

	if statsCollector != nil {
		statsCollector.Stop()
	}

	// Final flush of queued access events
	if err := pipeline.Close(shutdownCtx); err != nil {
		slog.Error("Write-back pipeline did not close cleanly", logging.Error(err))
	}
	logPipelineSummary(pipeline.Status())

	slog.Info("Server stopped")
}

// openStore returns the PostgreSQL sink, or the in-memory one when
// PostgreSQL is disabled.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store, error) {
	pg := cfg.Database.Postgres
	if !pg.Enabled {
		slog.Warn("PostgreSQL disabled - access logs are kept in memory only")
		return sink.NewMemory(), nil
	}

	if pg.RunMigrations {
		if err := migrations.Up(pg.ConnString(), logger); err != nil {
			return nil, err
		}
	}

	poolCfg := sink.DefaultPoolConfig()
	if pg.MaxConns > 0 {
		poolCfg.MaxConns = pg.MaxConns
	}
	if pg.MinConns > 0 {
		poolCfg.MinConns = pg.MinConns
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s, err := sink.NewPostgres(connectCtx, pg.ConnString(), poolCfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Connected to PostgreSQL",
		slog.String("host", pg.Host),
		slog.Int("port", pg.Port),
		slog.String("database", pg.Database),
	)
	return s, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// openDLQ builds the configured dead letter queue. The NATS connection is
// returned so the caller can health-check and close it.
func openDLQ(ctx context.Context, cfg *config.Config, logger *slog.Logger) (dlq.DeadLetterQueue, *natsclient.Conn, error) {
	if !cfg.DLQ.Enabled {
		slog.Info("Dead Letter Queue disabled")
		return nil, nil, nil
	}

	switch cfg.DLQ.Backend {
	case config.DLQBackendJetStream:
		// JetStream backend (supports multiple instances)
		conn, err := natsclient.Connect(natsclient.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.NATS.Name,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
			Timeout:       5 * time.Second,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}
		queue, err := dlq.NewJetStreamQueue(ctx, conn, logger)
		if err != nil {
			conn.Close()
			return nil, nil, err
		}
		slog.Info("Dead Letter Queue enabled",
			slog.String("backend", config.DLQBackendJetStream),
			slog.String("nats_url", cfg.NATS.URL),
		)
		return queue, conn, nil

	default:
		// File backend (single instance only)
		queue, err := dlq.NewQueue(cfg.DLQ.BasePath)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Dead Letter Queue enabled",
			slog.String("backend", config.DLQBackendFile),
			slog.String("path", cfg.DLQ.BasePath),
		)
		slog.Warn("File-based DLQ does not support multiple instances")
		return queue, nil, nil
	}
}

func logPipelineSummary(s models.Status) {
	slog.Info("Write-back pipeline closed",
		slog.Int64("total_persisted", s.TotalPersisted),
		slog.Int64("total_failed", s.TotalFailed),
		slog.Int64("total_dropped", s.TotalDropped),
		slog.Int("queue_length", s.QueueLength),
	)
}
