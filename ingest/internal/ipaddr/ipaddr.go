// Package ipaddr extracts and classifies client addresses.
package ipaddr

import (
	"net"
	"net/http"
	"strings"

	"github.com/telhawk-systems/accesslog/ingest/internal/models"
)

// Unknown is reported when a request carries no usable client address.
const Unknown = "unknown"

const mappedIPv4Prefix = "::ffff:"

// Address is a client address and its family.
type Address struct {
	Address string
	Kind    models.IPType
}

// Classify normalizes raw and reports its family. An IPv4-mapped IPv6
// address is unwrapped to IPv4; anything else containing a colon is IPv6.
func Classify(raw string) Address {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), mappedIPv4Prefix) {
		return Address{Address: raw[len(mappedIPv4Prefix):], Kind: models.IPv4}
	}
	if strings.Contains(raw, ":") {
		return Address{Address: raw, Kind: models.IPv6}
	}
	return Address{Address: raw, Kind: models.IPv4}
}

// ClientIP returns the caller's address, preferring the first
// X-Forwarded-For hop, then X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if r.RemoteAddr == "" {
		return Unknown
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
