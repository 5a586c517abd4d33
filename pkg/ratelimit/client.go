package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"github.com/wadjakorntonsri/engsite/pkg/audit"
)

// ClientKey identifies the caller for limiting. An authenticated subject wins
// (hashed, so addresses never end up in counter keys); otherwise the client
// IP is pseudonymized. Forwarding headers are honoured only behind a trusted
// proxy.
func ClientKey(r *http.Request, userID string, trustProxy bool) string {
	if userID != "" {
		sum := sha256.Sum256([]byte(userID))
		return "user:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + audit.PseudonymizeIP(ClientIP(r, trustProxy))
}

// ClientIP returns the best guess at the caller's address, or "unknown".
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
