// Package security implements the request-defense pipeline: identity
// resolution, API key verification, rate limiting, User-Agent filtering,
// scraping detection, and IP banning.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
)

// Identity prefixes used as namespaces for per-caller state keys.
const (
	identityAPIKeyPrefix = "apikey:"
	identityIPPrefix     = "ip:"
)

// ResolveIdentity derives a stable per-caller identifier from a request.
//
// When the configured API key header is present and non-empty, the identity
// is a truncated SHA-256 fingerprint of the key so the raw secret never
// appears in logs or state keys. Otherwise the remote IP is used.
// Pure function of its inputs; never fails on missing headers.
func ResolveIdentity(headers http.Header, remoteAddr, apiKeyHeader string) string {
	if key := headers.Get(apiKeyHeader); key != "" {
		sum := sha256.Sum256([]byte(key))
		return identityAPIKeyPrefix + hex.EncodeToString(sum[:])[:16]
	}
	return identityIPPrefix + RemoteIP(remoteAddr)
}

// RemoteIP extracts the host portion of a remote address, tolerating
// addresses without a port.
func RemoteIP(remoteAddr string) string {
	if remoteAddr == "" {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
