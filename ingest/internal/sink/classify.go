package sink

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/telhawk-systems/accesslog/ingest/internal/writeback"
)

// Classify maps a driver error onto the pipeline's retry taxonomy.
// Connection-level failures are transient; everything else, including
// constraint and data errors reported by the server, is not.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var se *writeback.SinkError
	if errors.As(err, &se) {
		return err
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return writeback.NewTransientError(writeback.CodeConnectionRefused, err)
	case errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		return writeback.NewTransientError(writeback.CodeHostUnreachable, err)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return writeback.NewTransientError(writeback.CodeBrokenPipe, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.Canceled):
		return writeback.NewTransientError(writeback.CodeTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPgError(pgErr, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return writeback.NewTransientError(writeback.CodeTimeout, err)
	}
	if pgconn.Timeout(err) {
		return writeback.NewTransientError(writeback.CodeTimeout, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) {
		return writeback.NewTransientError(writeback.CodeConnectionRefused, err)
	}

	return writeback.NewNonTransientError(writeback.CodeUnknown, err)
}

func classifyPgError(pgErr *pgconn.PgError, err error) error {
	switch {
	// Class 08: connection exception.
	case strings.HasPrefix(pgErr.Code, "08"):
		return writeback.NewTransientError(writeback.CodeConnectionRefused, err)
	// admin_shutdown, crash_shutdown, cannot_connect_now, too_many_connections
	case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03", pgErr.Code == "53300":
		return writeback.NewTransientError(writeback.CodeConnectionRefused, err)
	// query_canceled, raised by statement_timeout
	case pgErr.Code == "57014":
		return writeback.NewTransientError(writeback.CodeTimeout, err)
	// serialization_failure, deadlock_detected
	case pgErr.Code == "40001", pgErr.Code == "40P01":
		return writeback.NewTransientError(pgErr.Code, err)
	default:
		return writeback.NewNonTransientError(pgErr.Code, err)
	}
}
