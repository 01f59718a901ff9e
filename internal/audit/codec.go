package audit

import (
	"encoding/json"
	"fmt"
)

// New returns an empty variant for t, or nil if t is unknown.
func New(t EventType) Event {
	switch t {
	case TypeAuthorizationDecision:
		return &AuthorizationDecision{}
	case TypeIntegrationRequest:
		return &IntegrationRequest{}
	case TypeIntegrationApproval:
		return &IntegrationApproval{}
	case TypeIntegrationAccessDenied:
		return &IntegrationAccessDenied{}
	case TypeRevocationRequest:
		return &RevocationRequest{}
	case TypeRevocationPropagated:
		return &RevocationPropagated{}
	case TypeRevocationAccessDenied:
		return &RevocationAccessDenied{}
	case TypePolicyDecision:
		return &PolicyDecision{}
	case TypeGeneric:
		return &Generic{}
	}
	return nil
}

// Encode renders an event as JSON. The event_type field is the discriminator.
func Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: encode %s: %w", e.Meta().Type, err)
	}
	return data, nil
}

// Decode parses JSON produced by Encode back into its variant.
func Decode(data []byte) (Event, error) {
	var probe struct {
		Type EventType `json:"event_type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("audit: decode: %w", err)
	}
	e := New(probe.Type)
	if e == nil {
		return nil, fmt.Errorf("audit: decode: unknown event_type %q", probe.Type)
	}
	if err := json.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("audit: decode %s: %w", probe.Type, err)
	}
	return e, nil
}

// DecodeAll decodes a JSON array of events.
func DecodeAll(data []byte) ([]Event, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("audit: decode list: %w", err)
	}
	out := make([]Event, 0, len(raw))
	for i, r := range raw {
		e, err := Decode(r)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}
