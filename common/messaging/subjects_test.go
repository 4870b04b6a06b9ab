package messaging

import (
	"strings"
	"testing"
)

func TestDLQSubject(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"non_transient", "accesslog.dlq.non_transient"},
		{"capacity", "accesslog.dlq.capacity"},
		{"", "accesslog.dlq.unknown"},
		{"  ", "accesslog.dlq.unknown"},
		{"bad.reason", "accesslog.dlq.bad_reason"},
		{"a b>*", "accesslog.dlq.a_b__"},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			if got := DLQSubject(tt.reason); got != tt.want {
				t.Errorf("DLQSubject(%q) = %q, want %q", tt.reason, got, tt.want)
			}
		})
	}
}

func TestDLQSubject_MatchedByWildcard(t *testing.T) {
	prefix := strings.TrimSuffix(SubjectAccessLogDLQAll, ">")
	for _, reason := range []string{"non_transient", "capacity", "shutdown"} {
		if !strings.HasPrefix(DLQSubject(reason), prefix) {
			t.Errorf("subject for %q not covered by %q", reason, SubjectAccessLogDLQAll)
		}
	}
}
