// Package integrity computes the deterministic field hash stamped on every
// audit event. The hash is SHA-256 over the fields joined with FieldSeparator,
// rendered as 64 lowercase hex characters.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FieldSeparator joins fields before hashing. Event fields never contain it
// in practice; lists inside a field are joined with "," instead.
const FieldSeparator = "|"

// Hash returns the hex SHA-256 of fields joined by FieldSeparator.
// Order-sensitive; an empty list hashes the empty string.
func Hash(fields ...string) string {
	h := sha256.Sum256([]byte(strings.Join(fields, FieldSeparator)))
	return hex.EncodeToString(h[:])
}

// Equal compares two hex digests in constant time with respect to content.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := 0; i < len(a); i++ {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
