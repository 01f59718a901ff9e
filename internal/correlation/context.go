// Package correlation carries the trace identifier that links every audit
// event produced by one logical operation. A Context is created once by the
// outermost request handler and passed explicitly down the call chain; there
// is no ambient or global trace state.
package correlation

import (
	"strings"

	"github.com/google/uuid"
)

// HeaderName is the outbound header carrying the rendered context.
const HeaderName = "X-Correlation-Id"

// Context is an immutable correlation scope for one external request.
type Context struct {
	TraceID string `json:"trace_id"`
	User    string `json:"user,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Tool    string `json:"tool,omitempty"`
}

// New returns a Context with a freshly generated trace id.
// Empty user/agent/tool are treated as absent.
func New(user, agent, tool string) Context {
	return Context{TraceID: NewTraceID(), User: user, Agent: agent, Tool: tool}
}

// NewTraceID returns a globally unique opaque trace token (32 hex chars).
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Headers renders the populated fields as trace=…;user=…;agent=…;tool=…
// in that fixed order, omitting absent optional fields.
func (c Context) Headers() string {
	parts := []string{"trace=" + c.TraceID}
	if c.User != "" {
		parts = append(parts, "user="+c.User)
	}
	if c.Agent != "" {
		parts = append(parts, "agent="+c.Agent)
	}
	if c.Tool != "" {
		parts = append(parts, "tool="+c.Tool)
	}
	return strings.Join(parts, ";")
}

// Parse reads a header value produced by Headers. A value without a
// trace= segment is taken verbatim as the trace id, since correlation ids
// are opaque and never validated.
func Parse(header string) Context {
	header = strings.TrimSpace(header)
	var c Context
	found := false
	for _, seg := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(k) {
		case "trace":
			c.TraceID = v
			found = true
		case "user":
			c.User = v
		case "agent":
			c.Agent = v
		case "tool":
			c.Tool = v
		}
	}
	if !found {
		return Context{TraceID: header}
	}
	return c
}

// OrNew returns id when non-empty, otherwise a new trace id.
func OrNew(id string) string {
	if id != "" {
		return id
	}
	return NewTraceID()
}
