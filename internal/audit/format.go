package audit

import (
	"encoding/json"
	"fmt"
	"strings"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders events as a human-readable text timeline.
func FormatTimeline(correlationID string, events []Event) string {
	if len(events) == 0 {
		return fmt.Sprintf("Correlation: %s | No events found.\n", correlationID)
	}

	var b strings.Builder
	first := events[0].Meta().Timestamp.UTC()
	last := events[len(events)-1].Meta().Timestamp.UTC()
	b.WriteString(fmt.Sprintf("Correlation: %s | %s–%s UTC\n",
		correlationID, first.Format("2006-01-02 15:04:05"), last.Format("15:04:05")))
	b.WriteString(separator + "\n")

	counts := map[string]int{}
	tampered := 0
	for _, e := range events {
		h := e.Meta()
		tag := ""
		if !Verify(e) {
			tag = "  [tampered]"
			tampered++
		}
		counts[h.Outcome]++
		b.WriteString(fmt.Sprintf("%-10s %-26s %-13s %-36s%s\n",
			h.Timestamp.UTC().Format("15:04:05"), truncate(Step(e), 26),
			truncate(h.Outcome, 13), h.ID, tag))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(len(events), counts, tampered))
	return b.String()
}

// FormatJSON renders events as indented JSON.
func FormatJSON(events []Event) (string, error) {
	if events == nil {
		events = []Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal events: %w", err)
	}
	return string(data), nil
}

func formatSummary(total int, outcomes map[string]int, tampered int) string {
	parts := []string{}
	for _, o := range []string{"allow", "deny", "denied", "pending", "approved", "sla_met", "sla_breached"} {
		if n := outcomes[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, o))
		}
	}
	return fmt.Sprintf("Summary: %d events (%s) | Tampered: %d\n",
		total, strings.Join(parts, ", "), tampered)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
