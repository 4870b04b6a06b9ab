package models

import (
	"time"

	"github.com/google/uuid"
)

// IPType is the address family of a client IP.
type IPType string

const (
	IPv4 IPType = "IPv4"
	IPv6 IPType = "IPv6"
)

// Valid reports whether t is a known address family.
func (t IPType) Valid() bool {
	return t == IPv4 || t == IPv6
}

// EventRecord is a single observed access. It is created once at ingestion
// time and never mutated afterwards; it travels by value.
//
// ID is the uniqueness key the sink uses to ignore duplicate deliveries.
type EventRecord struct {
	ID            string    `json:"id"`
	ClientIP      string    `json:"client_ip"`
	IPType        IPType    `json:"ip_type"`
	RequestPath   string    `json:"request_path"`
	RequestMethod string    `json:"request_method"`
	UserAgent     string    `json:"user_agent,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewEventRecord creates a record with a fresh time-ordered ID.
func NewEventRecord(clientIP string, ipType IPType, path, method, userAgent string, observedAt time.Time) EventRecord {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return EventRecord{
		ID:            id.String(),
		ClientIP:      clientIP,
		IPType:        ipType,
		RequestPath:   path,
		RequestMethod: method,
		UserAgent:     userAgent,
		ObservedAt:    observedAt.UTC(),
	}
}

// AccessLog is a persisted record as returned by the read endpoints.
type AccessLog struct {
	ID            string    `json:"id"`
	ClientIP      string    `json:"clientIp"`
	IPType        IPType    `json:"ipType"`
	RequestPath   string    `json:"requestPath"`
	RequestMethod string    `json:"requestMethod"`
	UserAgent     string    `json:"userAgent,omitempty"`
	ObservedAt    time.Time `json:"observedAt"`
	CreateTime    time.Time `json:"createTime"`
}

// Status is a point-in-time snapshot of the write-back pipeline.
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
