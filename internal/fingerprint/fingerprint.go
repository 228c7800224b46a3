// Package fingerprint derives a stable pseudo-identity for a client from
// request metadata. Collisions across users sharing network and device
// signals are expected; the identity is a rate-limit and accounting key,
// not an account.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
)

// ipHashLen is the stored prefix length of the hashed IP, in hex chars.
const ipHashLen = 24

// Fingerprint is the derived pseudo-identity for one request.
type Fingerprint struct {
	// Identity is a hash over the joined metadata fields.
	Identity string
	// IPHash is an independent, truncated hash of the IP alone. It avoids
	// storing raw addresses but is not hardened against targeted reversal.
	IPHash    string
	UserAgent string
	Country   string
	Device    string
	Browser   string
}

// FromRequest computes the fingerprint for an inbound request. It is
// deterministic and side-effect free: identical headers always yield the
// same identity, and any absent header is replaced with a placeholder so
// the hash stays computable.
func FromRequest(r *http.Request) Fingerprint {
	ip := clientIP(r)
	userAgent := headerOr(r, "User-Agent", "unknown")
	country := headerOr(r, "CF-IPCountry", "??")
	device := headerOr(r, "Sec-CH-UA-Model", "unknown")
	browser := headerOr(r, "Sec-CH-UA", "unknown")

	identitySource := strings.Join([]string{ip, userAgent, country, device, browser}, "|")

	return Fingerprint{
		Identity:  hashHex(identitySource),
		IPHash:    hashHex(ip)[:ipHashLen],
		UserAgent: userAgent,
		Country:   country,
		Device:    device,
		Browser:   browser,
	}
}

// clientIP prefers the edge-provided header, then the resolved remote
// address (chi's RealIP middleware has already folded X-Forwarded-For in).
func clientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

func headerOr(r *http.Request, name, fallback string) string {
	if v := r.Header.Get(name); v != "" {
		return v
	}
	return fallback
}

func hashHex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
