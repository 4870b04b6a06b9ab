// Package messaging holds the broker-neutral parts of the access-log bus:
// subject names, header keys and the envelope published on them.
package messaging

import "errors"

// MaxHeaderValue bounds a single header value. Brokers reject oversized
// headers, and error strings from the database can be long.
const MaxHeaderValue = 256

// ErrDisconnected reports a missing or broken broker connection.
var ErrDisconnected = errors.New("not connected to message broker")

// Envelope is one message bound for a subject.
type Envelope struct {
	Subject string
	Payload []byte
	Headers map[string]string
}

// NewEnvelope returns an envelope with no headers.
func NewEnvelope(subject string, payload []byte) *Envelope {
	return &Envelope{Subject: subject, Payload: payload}
}

// Set adds a header. Empty values are skipped and long ones truncated.
func (e *Envelope) Set(key, value string) *Envelope {
	if value == "" {
		return e
	}
	if len(value) > MaxHeaderValue {
		value = value[:MaxHeaderValue]
	}
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[key] = value
	return e
}

// Connection is a broker link that can report liveness.
type Connection interface {
	IsConnected() bool
}

// Probe returns ErrDisconnected unless conn is up. It fits readiness checks.
func Probe(conn Connection) error {
	if conn == nil || !conn.IsConnected() {
		return ErrDisconnected
	}
	return nil
}
