package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the service and CLI.
const (
	FieldService     = "service"
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldIP          = "ip"
	FieldIPType      = "ip_type"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatus      = "status"
	FieldDuration    = "duration_ms"
	FieldError       = "error"
	FieldEventID     = "event_id"
	FieldBatchSize   = "batch_size"
	FieldQueueLength = "queue_length"
	FieldReason      = "reason"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RequestID returns a slog attribute for the request ID.
func RequestID(id string) slog.Attr {
	return slog.String(FieldRequestID, id)
}

// IP returns a slog attribute for the IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// IPType returns a slog attribute for the address family (IPv4/IPv6).
func IPType(kind string) slog.Attr {
	return slog.String(FieldIPType, kind)
}

// Method returns a slog attribute for the HTTP method.
func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

// Path returns a slog attribute for the HTTP path.
func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

// Status returns a slog attribute for the HTTP status code.
func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration returns a slog attribute for a duration, in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error. A nil error yields an empty string.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

// EventID returns a slog attribute for an access event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// BatchSize returns a slog attribute for the number of records in a batch.
func BatchSize(n int) slog.Attr {
	return slog.Int(FieldBatchSize, n)
}

// QueueLength returns a slog attribute for the current write-back queue length.
func QueueLength(n int) slog.Attr {
	return slog.Int(FieldQueueLength, n)
}

// Reason returns a slog attribute describing why a record was dropped or rerouted.
func Reason(reason string) slog.Attr {
	return slog.String(FieldReason, reason)
}
