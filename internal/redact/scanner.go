package redact

import (
	"regexp"
	"sort"
	"strings"
)

// PatternType identifies the category of sensitive data.
type PatternType string

const (
	PatternCred      PatternType = "CRED"
	PatternAccessKey PatternType = "ACCESS_KEY"
	PatternBearer    PatternType = "BEARER"
	PatternEmail     PatternType = "EMAIL"
)

// Match is a single occurrence of sensitive data in text.
type Match struct {
	Type  PatternType
	Value string
	Start int
	End   int
}

var (
	// key=value pairs where key suggests a secret. Only the value is masked.
	credKVRe = regexp.MustCompile(`(?i)\b(\w*(?:password|passwd|secret|token|api_key|apikey)|auth)([ \t]*[=:][ \t]*)(\S+)`)

	// AWS access key ids (long-term and temporary).
	accessKeyRe = regexp.MustCompile(`\b((?:AKIA|ASIA)[0-9A-Z]{16})\b`)

	bearerRe = regexp.MustCompile(`(?i)\bbearer\s+([A-Za-z0-9\-._~+/]+=*)`)

	emailRe = regexp.MustCompile(`\b([a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})\b`)
)

// Scan finds sensitive values in text and returns deduplicated matches
// sorted by position (earliest first).
func Scan(text string) []Match {
	seen := make(map[string]bool)
	var matches []Match

	add := func(typ PatternType, start, end int) {
		value := strings.TrimRight(text[start:end], ".,;\"'`)}]")
		if value == "" || seen[value] {
			return
		}
		seen[value] = true
		matches = append(matches, Match{Type: typ, Value: value, Start: start, End: start + len(value)})
	}

	for _, sub := range credKVRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternCred, sub[6], sub[7])
	}
	for _, sub := range accessKeyRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternAccessKey, sub[2], sub[3])
	}
	for _, sub := range bearerRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternBearer, sub[2], sub[3])
	}
	for _, sub := range emailRe.FindAllStringSubmatchIndex(text, -1) {
		add(PatternEmail, sub[2], sub[3])
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Start < matches[j].Start
	})
	return matches
}

// Text replaces every match in s with Mask.
func Text(s string) string {
	matches := Scan(s)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	last := 0
	for _, m := range matches {
		if m.Start < last {
			continue
		}
		b.WriteString(s[last:m.Start])
		b.WriteString(Mask)
		last = m.End
	}
	b.WriteString(s[last:])
	return b.String()
}
