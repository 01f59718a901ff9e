package model

import (
	"sort"
	"strings"
)

// Effect is the outcome of an authorization or policy decision.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// ParseEffect normalizes s and reports whether it names a known effect.
func ParseEffect(s string) (Effect, bool) {
	switch Effect(strings.ToLower(strings.TrimSpace(s))) {
	case Allow:
		return Allow, true
	case Deny:
		return Deny, true
	}
	return "", false
}

// RiskRating is the coarse risk class assigned to a principal.
type RiskRating string

const (
	RiskLow      RiskRating = "LOW"
	RiskModerate RiskRating = "MODERATE"
	RiskHigh     RiskRating = "HIGH"
)

// RiskRank maps ratings to a comparable integer.
var RiskRank = map[RiskRating]int{
	RiskLow:      0,
	RiskModerate: 1,
	RiskHigh:     2,
}

// Classification is the sensitivity class of a tool in the classification registry.
type Classification string

const (
	ClassLow       Classification = "LOW"
	ClassModerate  Classification = "MODERATE"
	ClassHigh      Classification = "HIGH"
	ClassSensitive Classification = "SENSITIVE"
)

// ValidClassification reports whether c is a known classification.
func ValidClassification(c Classification) bool {
	switch c {
	case ClassLow, ClassModerate, ClassHigh, ClassSensitive:
		return true
	}
	return false
}

// SortedKeys returns the keys of a string set in ascending order.
func SortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
