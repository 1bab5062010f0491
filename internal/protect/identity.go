// Package protect implements the pre-flight checks every inference endpoint
// runs before doing any work: address blocking and per-identity rate limits.
package protect

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// UnknownAddress is the client address used when no forwarding header is set.
const UnknownAddress = "unknown"

// ClientAddress returns the caller's address as reported by the fronting
// proxy: the first X-Forwarded-For entry, then X-Real-IP, then
// UnknownAddress. The headers are trusted verbatim, so the service must sit
// behind a proxy that sets them.
func ClientAddress(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return UnknownAddress
}

// Identity derives the opaque rate-limit key for a caller. Authenticated
// callers are keyed by user ID so they keep one budget across addresses.
func Identity(addr, userID string) string {
	if userID != "" {
		return "user:" + userID
	}
	sum := sha256.Sum256([]byte(addr))
	return "ip:" + hex.EncodeToString(sum[:])
}
