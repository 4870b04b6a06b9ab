// Package nats connects the access-log bus to NATS JetStream.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/accesslog/common/logging"
	"github.com/telhawk-systems/accesslog/common/messaging"
)

// Config holds connection settings.
type Config struct {
	URL  string
	Name string
	// MaxReconnects of -1 retries forever.
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
	// Either Token or Username/Password, both optional.
	Token    string
	Username string
	Password string
	Logger   *slog.Logger
}

// DefaultConfig targets a local server and reconnects forever.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "accesslog-ingest",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

func (cfg Config) natsOptions() []nats.Option {
	logger := logging.Component(cfg.Logger, "nats")

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("connection lost", logging.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("connection restored", slog.String("url", c.ConnectedUrl()))
		}),
	}
	switch {
	case cfg.Token != "":
		opts = append(opts, nats.Token(cfg.Token))
	case cfg.Username != "" && cfg.Password != "":
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	return opts
}

// StreamSpec describes a JetStream stream owned by this service.
type StreamSpec struct {
	Name     string
	Subjects []string
	MaxAge   time.Duration
	MaxBytes int64
	MaxMsgs  int64
}

// DeadLetterStream keeps a week of abandoned batches, capped at 1GB.
var DeadLetterStream = StreamSpec{
	Name:     "ACCESSLOG_DLQ",
	Subjects: []string{messaging.SubjectAccessLogDLQAll},
	MaxAge:   7 * 24 * time.Hour,
	MaxBytes: 1 << 30,
	MaxMsgs:  1_000_000,
}

func (s StreamSpec) config() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:      s.Name,
		Subjects:  s.Subjects,
		MaxAge:    s.MaxAge,
		MaxBytes:  s.MaxBytes,
		MaxMsgs:   s.MaxMsgs,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
		Discard:   jetstream.DiscardOld,
	}
}

// Conn is a NATS connection with a JetStream context.
type Conn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// Connect dials cfg.URL and opens JetStream on the connection.
func Connect(cfg Config) (*Conn, error) {
	nc, err := nats.Connect(cfg.URL, cfg.natsOptions()...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("open JetStream: %w", err)
	}
	return &Conn{nc: nc, js: js}, nil
}

// EnsureStream creates the stream or updates it to match spec.
func (c *Conn) EnsureStream(ctx context.Context, spec StreamSpec) (jetstream.Stream, error) {
	stream, err := c.js.CreateOrUpdateStream(ctx, spec.config())
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", spec.Name, err)
	}
	return stream, nil
}

// Publish sends env and waits for the stream to acknowledge it.
func (c *Conn) Publish(ctx context.Context, env *messaging.Envelope) (*jetstream.PubAck, error) {
	return c.js.PublishMsg(ctx, toMsg(env))
}

// IsConnected is safe on a nil Conn.
func (c *Conn) IsConnected() bool {
	return c != nil && c.nc != nil && c.nc.IsConnected()
}

// Close drains pending publishes, falling back to a hard close.
func (c *Conn) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

func toMsg(env *messaging.Envelope) *nats.Msg {
	msg := nats.NewMsg(env.Subject)
	msg.Data = env.Payload
	for k, v := range env.Headers {
		msg.Header.Set(k, v)
	}
	return msg
}
