// Package fingerprint derives the content hash that identifies a certificate independently
// of its database row.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Prefix marks a string as a content hash.
const Prefix = "0x"

const hexLen = sha256.Size * 2

// Fingerprint serializes cf as a fixed-order JSON object and returns "0x" followed by the
// lowercase hex SHA-256 of those bytes.
func Fingerprint(cf CanonicalForm) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// strings and ints only; Encode cannot fail
	_ = enc.Encode(cf)
	sum := sha256.Sum256(rawLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))))
	return Prefix + hex.EncodeToString(sum[:])
}

// rawLineSeparators turns the \u2028 and \u2029 escapes encoding/json always emits back into
// the raw characters, so the bytes match a plain JSON.stringify of the same object. Escaped
// backslashes are copied through untouched.
func rawLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 >= len(b) {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && string(b[i+1:i+5]) == "u202" && (b[i+5] == '8' || b[i+5] == '9') {
			if b[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, b[i], b[i+1])
		i++
	}
	return out
}

// Compute canonicalizes r and fingerprints it.
func Compute(r Record) string {
	return Fingerprint(Canonicalize(r))
}

// Normalize returns the canonical spelling of a fingerprint ("0x" + 64 lowercase hex).
// Bare hex without the prefix is accepted. ok is false for malformed input.
func Normalize(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, Prefix)
	if len(s) != hexLen {
		return "", false
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", false
	}
	return Prefix + s, true
}

// Equal reports whether a and b name the same fingerprint.
func Equal(a, b string) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	if !okA || !okB {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(na), []byte(nb)) == 1
}
