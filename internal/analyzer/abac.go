package analyzer

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// ABACAttribute is one candidate attribute for attribute-based access control.
type ABACAttribute struct {
	Attribute        string `json:"attribute"`
	Source           string `json:"source"`
	PotentialUse     string `json:"potential_use"`
	CollectionMethod string `json:"collection_method"`
}

// ABACExport is the feasibility matrix plus its CSV rendering.
type ABACExport struct {
	Attributes []ABACAttribute `json:"attributes"`
	CSV        string          `json:"csv_export"`
}

var abacHeader = []string{"attribute", "source", "potential_use", "collection_method"}

// ABACMatrix renders attributes. An empty list yields an empty CSV.
func ABACMatrix(attrs []ABACAttribute) (ABACExport, error) {
	out := ABACExport{Attributes: []ABACAttribute{}}
	if len(attrs) == 0 {
		return out, nil
	}
	out.Attributes = append(out.Attributes, attrs...)
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(abacHeader); err != nil {
		return ABACExport{}, fmt.Errorf("abac: %w", err)
	}
	for _, a := range attrs {
		if err := w.Write([]string{a.Attribute, a.Source, a.PotentialUse, a.CollectionMethod}); err != nil {
			return ABACExport{}, fmt.Errorf("abac: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return ABACExport{}, fmt.Errorf("abac: %w", err)
	}
	out.CSV = buf.String()
	return out, nil
}

// DefaultABACAttributes lists the attributes this system already collects.
func DefaultABACAttributes() []ABACAttribute {
	return []ABACAttribute{
		{"environment", "IAM tags", "Environment-based policies (prod vs dev isolation)", "IAM tag listing"},
		{"sensitivity_level", "classification registry", "Gate SENSITIVE tools behind approval", "Tool classification file"},
		{"owner", "IAM tags", "Ownership enforcement and escalation routing", "IAM tag listing"},
		{"purpose", "IAM tags", "Purpose-bound access reviews", "IAM tag listing"},
		{"risk_rating", "analyzer", "Risk-based access control", "Computed from policy footprint"},
		{"last_used_at", "IAM role metadata", "Expire access for inactive principals", "IAM GetRole last-used date"},
	}
}

// DefaultABACMatrix renders DefaultABACAttributes.
func DefaultABACMatrix() (ABACExport, error) {
	return ABACMatrix(DefaultABACAttributes())
}
