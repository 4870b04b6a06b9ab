package messaging

import "strings"

// Subject constants for the access-log message bus.
// Follow the pattern: {domain}.{action}.{resource}
const (
	// SubjectAccessLogDLQ is the root of dead-lettered access events.
	SubjectAccessLogDLQ = "accesslog.dlq"

	// SubjectAccessLogDLQAll matches every dead-letter reason.
	SubjectAccessLogDLQAll = SubjectAccessLogDLQ + ".>"
)

// Header keys attached to dead-letter messages.
const (
	HeaderDLQReason = "Dlq-Reason"
	HeaderDLQError  = "Dlq-Error"
	HeaderDLQCount  = "Dlq-Count"
)

// DLQSubject returns the dead-letter subject for a reason.
// Example: accesslog.dlq.non_transient
func DLQSubject(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	reason = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_").Replace(reason)
	return SubjectAccessLogDLQ + "." + reason
}
