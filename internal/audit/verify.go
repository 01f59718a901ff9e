package audit

import "github.com/ppiankov/govtrail/internal/integrity"

// Verify recomputes e's hash from its fields and compares it to the stored hash.
func Verify(e Event) bool {
	stored := e.Meta().IntegrityHash
	if stored == "" {
		return false
	}
	return integrity.Equal(stored, integrity.Hash(e.HashFields()...))
}

// Integrity statuses.
const (
	StatusValid       = "valid"
	StatusTampered    = "tampered"
	StatusMissingHash = "missing_hash"
)

// IntegrityResult is the verification outcome for one event.
type IntegrityResult struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	Status    string    `json:"status"`
}

// IntegrityReport summarizes verification over a batch of events.
type IntegrityReport struct {
	Total       int               `json:"total_events"`
	Valid       int               `json:"valid_events"`
	Tampered    int               `json:"tampered_events"`
	MissingHash int               `json:"missing_hash_events"`
	AllValid    bool              `json:"all_valid"`
	Results     []IntegrityResult `json:"results"`
}

// ValidateIntegrity verifies every event. Failures are reported as data.
func ValidateIntegrity(events []Event) IntegrityReport {
	r := IntegrityReport{Total: len(events), Results: make([]IntegrityResult, 0, len(events))}
	for _, e := range events {
		h := e.Meta()
		res := IntegrityResult{EventID: h.ID, EventType: h.Type}
		switch {
		case h.IntegrityHash == "":
			res.Status = StatusMissingHash
			r.MissingHash++
		case Verify(e):
			res.Status = StatusValid
			r.Valid++
		default:
			res.Status = StatusTampered
			r.Tampered++
		}
		r.Results = append(r.Results, res)
	}
	r.AllValid = r.Valid == r.Total
	return r
}
