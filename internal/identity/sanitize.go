package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SanitizeForFile converts an arbitrary ID into a string safe for use in a
// filename, e.g. "192.168.1.12:5555" -> "192.168.1.12_5555".
//
// Used to build the "{type}_{sanitize(SDID)}.json" store filenames.
func SanitizeForFile(id string) string {
	return unsafeChars.ReplaceAllString(id, "_")
}

// SanitizeForTopic converts an arbitrary ID into a string safe for use as
// an MQTT topic segment. MQTT topics forbid "+", "#" and NUL; we're stricter:
// ":" and "." become "-", and anything else outside [a-zA-Z0-9_-] folds to
// "_" to keep discovery unique_ids predictable.
func SanitizeForTopic(id string) string {
	replaced := strings.ReplaceAll(id, ":", "-")
	replaced = strings.ReplaceAll(replaced, ".", "-")
	return unsafeChars.ReplaceAllString(replaced, "_")
}

// hashFallback derives a short, stable, filesystem/topic-safe ID from an
// arbitrary string. Used for the android_id / build-fingerprint /
// manufacturer+model fallback tiers of resolve_serial, where the raw value
// may contain characters unsuitable for an SDID or may be excessively long.
func hashFallback(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return prefix + "-" + hex.EncodeToString(sum[:])[:16]
}

// looksLikeAddress reports whether s looks like a "host:port" transport
// address rather than a genuine hardware serial. adb get-serialno returns
// the CID itself for devices connected solely over wireless debugging,
// which must never be treated as a stable serial.
func looksLikeAddress(s string) bool {
	if s == "" {
		return false
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 || idx == len(s)-1 {
		return false
	}
	port := s[idx+1:]
	for _, r := range port {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
