package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ppiankov/govtrail/internal/analyzer"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/decision"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/evidence"
	"github.com/ppiankov/govtrail/internal/model"
	"github.com/ppiankov/govtrail/internal/revocation"
)

func (s *Server) principals(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	size, err := queryInt(r, "page_size")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.engine.Principals(r.Context(), engine.PrincipalQuery{
		Environment: q.Get("environment"),
		Owner:       q.Get("owner"),
		Page:        page,
		PageSize:    size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) agents(w http.ResponseWriter, r *http.Request) {
	agents := s.engine.Agents()
	s.writeJSON(w, http.StatusOK, traceOf(r), map[string]any{"agents": agents, "count": len(agents)})
}

func (s *Server) getTools(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.AgentTools(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

type putToolsBody struct {
	Tools              []string                                  `json:"tools"`
	Reason             string                                    `json:"reason"`
	Approvals          map[string]*classification.ApprovalRecord `json:"approval_records"`
	SkipClassification bool                                      `json:"skip_classification"`
}

func (s *Server) putTools(w http.ResponseWriter, r *http.Request) {
	var body putToolsBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Tools == nil {
		s.writeError(w, r, model.Invalid("tools", "is required"))
		return
	}
	res, err := s.engine.UpdateAgentTools(traceOf(r), engine.UpdateToolsRequest{
		AgentID:            mux.Vars(r)["id"],
		Tools:              body.Tools,
		Reason:             body.Reason,
		Approvals:          body.Approvals,
		SkipClassification: body.SkipClassification,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) checkTool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	res, err := s.engine.CheckToolAccess(traceOf(r), vars["id"], vars["tool"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.AuthorizationHistory(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) requestIntegration(w http.ResponseWriter, r *http.Request) {
	var body engine.IntegrationRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.RequestIntegration(traceOf(r), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res.CorrelationID, res)
}

func (s *Server) listIntegrations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Integrations(r.URL.Query().Get("status"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), map[string]any{"integrations": recs, "count": len(recs)})
}

func (s *Server) getIntegration(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Integration(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), rec)
}

func (s *Server) approveIntegration(w http.ResponseWriter, r *http.Request) {
	var body engine.IntegrationApproval
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.ApproveIntegration(traceOf(r), mux.Vars(r)["id"], body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) checkIntegration(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		s.writeError(w, r, model.Invalid("target", "query parameter is required"))
		return
	}
	res, err := s.engine.CheckIntegrationAccess(traceOf(r), mux.Vars(r)["id"], target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) revokeIntegration(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.RevokeIntegration(traceOf(r), mux.Vars(r)["id"], body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) expireIntegrations(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ExpireIntegrations(traceOf(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) createRevocation(w http.ResponseWriter, r *http.Request) {
	var body revocation.Request
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.CreateRevocation(traceOf(r), body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res.CorrelationID, res)
}

func (s *Server) listRevocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := s.engine.Revocations(q.Get("status"), q.Get("subject_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), map[string]any{"revocations": recs, "count": len(recs)})
}

func (s *Server) getRevocation(w http.ResponseWriter, r *http.Request) {
	rec, err := s.engine.Revocation(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), rec)
}

func (s *Server) propagateRevocation(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.PropagateRevocation(traceOf(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) failRevocation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Error string `json:"error"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.FailRevocation(traceOf(r), mux.Vars(r)["id"], body.Error)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) checkRevoked(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.engine.CheckSubjectRevoked(traceOf(r), q.Get("subject_type"), q.Get("subject_id"), q.Get("action"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res.CorrelationID, res)
}

func (s *Server) slaMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, traceOf(r), s.engine.SLAMetrics())
}

type decisionBody struct {
	SubjectType     string `json:"subject_type"`
	SubjectID       string `json:"subject_id"`
	Action          string `json:"action"`
	Resource        string `json:"resource"`
	Effect          string `json:"effect"`
	PolicyReference string `json:"policy_reference"`
	Reason          string `json:"reason"`
}

func (s *Server) recordDecision(w http.ResponseWriter, r *http.Request) {
	var body decisionBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.engine.RecordDecision(traceOf(r), decision.Input{
		SubjectType:     body.SubjectType,
		SubjectID:       body.SubjectID,
		Action:          body.Action,
		Resource:        body.Resource,
		Effect:          body.Effect,
		PolicyReference: body.PolicyReference,
		Reason:          body.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d.CorrelationID, d)
}

func (s *Server) listDecisions(w http.ResponseWriter, r *http.Request) {
	hours, err := queryInt(r, "hours_back")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.engine.ListDecisions(decision.Filter{
		SubjectID:       q.Get("subject_id"),
		Effect:          q.Get("effect"),
		HoursBack:       hours,
		Limit:           limit,
		ResourcePattern: q.Get("resource_pattern"),
		ActionPattern:   q.Get("action_pattern"),
		AggregateBy:     q.Get("aggregate_by"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

type eventBody struct {
	Name           string         `json:"name"`
	PrincipalID    string         `json:"principal_id"`
	PrincipalChain []string       `json:"principal_chain"`
	Action         string         `json:"action"`
	Outcome        string         `json:"outcome"`
	LatencyMs      int64          `json:"latency_ms"`
	Metadata       map[string]any `json:"metadata"`
}

func (s *Server) recordEvent(w http.ResponseWriter, r *http.Request) {
	var body eventBody
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	ev := s.engine.RecordEvent(traceOf(r), audit.GenericParams{
		Name:           body.Name,
		PrincipalID:    body.PrincipalID,
		PrincipalChain: body.PrincipalChain,
		Action:         body.Action,
		Outcome:        body.Outcome,
		LatencyMs:      body.LatencyMs,
		Metadata:       body.Metadata,
	})
	s.writeJSON(w, http.StatusCreated, ev.CorrelationID, ev)
}

func (s *Server) leastPrivilege(w http.ResponseWriter, r *http.Request) {
	threshold, err := queryFloat(r, "threshold")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.LeastPrivilegeReport(r.Context(), r.URL.Query().Get("environment"), threshold)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) orphans(w http.ResponseWriter, r *http.Request) {
	strict, err := queryBool(r, "strict")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Orphans(r.Context(), r.URL.Query().Get("environment"), strict)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) remediate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Environment string `json:"environment"`
		analyzer.RemediationOptions
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.engine.Remediate(r.Context(), body.Environment, body.RemediationOptions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) abac(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Attributes []analyzer.ABACAttribute `json:"attributes"`
	}
	if r.Method == http.MethodPost {
		if err := decode(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	res, err := s.engine.ABAC(body.Attributes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), res)
}

func (s *Server) evidencePack(w http.ResponseWriter, r *http.Request) {
	var p evidence.Params
	if err := decode(r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	pack, err := s.engine.EvidencePack(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), pack)
}

func (s *Server) reconstruct(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("correlation_id")
	rec, err := s.engine.Reconstruct(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, id, rec)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Events []json.RawMessage `json:"events"`
	}
	if err := decode(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	events := make([]audit.Event, 0, len(body.Events))
	for _, raw := range body.Events {
		ev, err := audit.Decode(raw)
		if err != nil {
			s.writeError(w, r, model.Invalid("events", err.Error()))
			return
		}
		events = append(events, ev)
	}
	s.writeJSON(w, http.StatusOK, traceOf(r), s.engine.ValidateIntegrity(events))
}
