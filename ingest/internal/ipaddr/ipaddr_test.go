package ipaddr

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		raw      string
		wantAddr string
		wantKind models.IPType
	}{
		{"112.120.114.93", "112.120.114.93", models.IPv4},
		{"::ffff:112.120.114.93", "112.120.114.93", models.IPv4},
		{"::FFFF:10.0.0.1", "10.0.0.1", models.IPv4},
		{"2001:db8::1", "2001:db8::1", models.IPv6},
		{"::1", "::1", models.IPv6},
		{" 192.168.1.1 ", "192.168.1.1", models.IPv4},
		{"unknown", "unknown", models.IPv4},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := Classify(tt.raw)
			assert.Equal(t, tt.wantAddr, got.Address)
			assert.Equal(t, tt.wantKind, got.Kind)
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "forwarded for takes first hop",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.2, 10.0.0.3"},
			remoteAddr: "10.0.0.3:4000",
			want:       "203.0.113.9",
		},
		{
			name:       "real ip when no forwarded for",
			headers:    map[string]string{"X-Real-IP": "198.51.100.4"},
			remoteAddr: "10.0.0.3:4000",
			want:       "198.51.100.4",
		},
		{
			name:       "remote addr host",
			remoteAddr: "192.0.2.10:51234",
			want:       "192.0.2.10",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::5]:8080",
			want:       "2001:db8::5",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.0.2.11",
			want:       "192.0.2.11",
		},
		{
			name:       "empty forwarded for falls through",
			headers:    map[string]string{"X-Forwarded-For": " , 10.0.0.1"},
			remoteAddr: "192.0.2.12:1",
			want:       "192.0.2.12",
		},
		{
			name: "nothing available",
			want: Unknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ip/my", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
