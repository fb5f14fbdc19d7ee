package security

import "crypto/subtle"

// KeyVerifier validates presented API keys against the immutable key sets
// loaded at startup. Verification is exact and case-sensitive; an absent or
// empty key is always rejected.
type KeyVerifier struct {
	regular [][]byte
	admin   [][]byte

	// bypass makes every verification succeed. Only set from the explicit
	// development-mode configuration flag; config.Validate refuses it in
	// production.
	bypass bool
}

// NewKeyVerifier builds a verifier from the configured key sets.
func NewKeyVerifier(regular, admin []string, insecureBypass bool) *KeyVerifier {
	return &KeyVerifier{
		regular: toBytes(regular),
		admin:   toBytes(admin),
		bypass:  insecureBypass,
	}
}

// VerifyRegular reports whether the presented key is a configured API key.
func (v *KeyVerifier) VerifyRegular(presented string) bool {
	if v.bypass {
		return true
	}
	return contains(v.regular, presented)
}

// VerifyAdmin reports whether the presented key is a configured admin key.
func (v *KeyVerifier) VerifyAdmin(presented string) bool {
	if v.bypass {
		return true
	}
	return contains(v.admin, presented)
}

func contains(set [][]byte, presented string) bool {
	if presented == "" {
		return false
	}
	p := []byte(presented)
	found := false
	for _, k := range set {
		if len(k) == len(p) && subtle.ConstantTimeCompare(k, p) == 1 {
			found = true
		}
	}
	return found
}

func toBytes(keys []string) [][]byte {
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}

// KeyPreview returns at most the first 8 characters of a key for log lines.
// Full keys must never reach a log.
func KeyPreview(key string) string {
	if key == "" {
		return "none"
	}
	if len(key) <= 8 {
		return key
	}
	return key[:8]
}
