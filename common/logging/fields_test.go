package logging

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestStringFields(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"service", Service("ingest"), FieldService, "ingest"},
		{"request id", RequestID("req-1"), FieldRequestID, "req-1"},
		{"ip", IP("203.0.113.9"), FieldIP, "203.0.113.9"},
		{"ip type", IPType("IPv6"), FieldIPType, "IPv6"},
		{"method", Method("GET"), FieldMethod, "GET"},
		{"path", Path("/ip/my"), FieldPath, "/ip/my"},
		{"event id", EventID("evt-42"), FieldEventID, "evt-42"},
		{"reason", Reason("non_transient"), FieldReason, "non_transient"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestIntFields(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal int64
	}{
		{"status", Status(429), FieldStatus, 429},
		{"batch size", BatchSize(500), FieldBatchSize, 500},
		{"queue length", QueueLength(17), FieldQueueLength, 17},
		{"duration", Duration(1500 * time.Millisecond), FieldDuration, 1500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.Int64() != tt.wantVal {
				t.Errorf("value = %d, want %d", tt.attr.Value.Int64(), tt.wantVal)
			}
		})
	}
}

func TestError(t *testing.T) {
	attr := Error(errors.New("connection refused"))
	if attr.Key != FieldError {
		t.Errorf("expected key %q, got %q", FieldError, attr.Key)
	}
	if attr.Value.String() != "connection refused" {
		t.Errorf("expected value %q, got %q", "connection refused", attr.Value.String())
	}

	if got := Error(nil).Value.String(); got != "" {
		t.Errorf("Error(nil) value = %q, want empty", got)
	}
}
