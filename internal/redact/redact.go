// Package redact masks secrets and personal data in free-form audit
// fields before events are hashed and persisted.
package redact

import "strings"

// Mask replaces a redacted value.
const Mask = "***"

// DefaultKeys are the metadata keys masked regardless of their value.
var DefaultKeys = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"access_key", "secret_access_key", "session_token", "authorization",
	"private_key", "credential", "credentials",
	"email", "phone", "ssn", "date_of_birth", "dob", "passport",
	"credit_card", "card_number", "cvv",
}

// Redactor masks configured keys and credential-shaped text.
// A nil Redactor passes everything through.
type Redactor struct {
	keys map[string]bool
}

// New returns a Redactor masking DefaultKeys plus extraKeys. Key matching
// is case-insensitive.
func New(extraKeys []string) *Redactor {
	r := &Redactor{keys: make(map[string]bool, len(DefaultKeys)+len(extraKeys))}
	for _, k := range DefaultKeys {
		r.keys[k] = true
	}
	for _, k := range extraKeys {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			r.keys[k] = true
		}
	}
	return r
}

// MaskValue replaces a value with Mask. Numbers, bools and nil are preserved.
func MaskValue(v any) any {
	switch v.(type) {
	case int, int64, float64, bool:
		return v
	case nil:
		return nil
	default:
		return Mask
	}
}

// Map returns a copy of data with sensitive keys masked and credential
// patterns scrubbed from string values. Nested maps and lists are walked.
func (r *Redactor) Map(data map[string]any) map[string]any {
	if r == nil || data == nil {
		return data
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if r.keys[strings.ToLower(k)] {
			out[k] = MaskValue(v)
			continue
		}
		out[k] = r.value(v)
	}
	return out
}

func (r *Redactor) value(v any) any {
	switch t := v.(type) {
	case string:
		return Text(t)
	case map[string]any:
		return r.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = r.value(x)
		}
		return out
	default:
		return v
	}
}

// Text scrubs credential patterns from s. A nil Redactor leaves s alone.
func (r *Redactor) Text(s string) string {
	if r == nil {
		return s
	}
	return Text(s)
}
