package alert

import (
	"encoding/json"
	"fmt"
	"sort"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Severity:* %s", event.Severity)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Correlation:* %s", event.CorrelationID)},
	}
	if event.SubjectID != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Subject:* %s/%s", event.SubjectType, event.SubjectID)})
	}
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*%s:* %s", k, event.Details[k])})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("govtrail: %s", event.Type),
				},
			},
			map[string]any{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": event.Summary},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	severity := event.Severity
	if severity == "" {
		severity = SeverityInfo
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("govtrail %s: %s", event.Type, event.Summary),
			"severity": severity,
			"source":   "govtrail",
			"custom_details": map[string]any{
				"subject_type":   event.SubjectType,
				"subject_id":     event.SubjectID,
				"correlation_id": event.CorrelationID,
				"details":        event.Details,
			},
		},
	}
	return json.Marshal(payload)
}
