// Package httpapi is the thin HTTP request layer over the engine. Every
// handler decodes its input, calls one engine operation and encodes the
// result as JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/ppiankov/govtrail/internal/correlation"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/model"
)

// maxBody caps request bodies.
const maxBody = 1 << 20

// Server serves the governance HTTP API.
type Server struct {
	engine *engine.Engine
	logger *log.Logger
	router *mux.Router
}

// New builds the router. A nil logger writes to stderr.
func New(e *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "httpapi: ", log.LstdFlags)
	}
	s := &Server{engine: e, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := s.router
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)

	r.HandleFunc("/catalog/principals", s.principals).Methods(http.MethodGet)

	r.HandleFunc("/authorization/agents", s.agents).Methods(http.MethodGet)
	r.HandleFunc("/authorization/agents/{id}/tools", s.getTools).Methods(http.MethodGet)
	r.HandleFunc("/authorization/agents/{id}/tools", s.putTools).Methods(http.MethodPut)
	r.HandleFunc("/authorization/agents/{id}/tools/{tool}", s.checkTool).Methods(http.MethodGet)
	r.HandleFunc("/authorization/agents/{id}/history", s.history).Methods(http.MethodGet)

	r.HandleFunc("/integrations", s.requestIntegration).Methods(http.MethodPost)
	r.HandleFunc("/integrations", s.listIntegrations).Methods(http.MethodGet)
	r.HandleFunc("/integrations/expire", s.expireIntegrations).Methods(http.MethodPost)
	r.HandleFunc("/integrations/{id}", s.getIntegration).Methods(http.MethodGet)
	r.HandleFunc("/integrations/{id}/approve", s.approveIntegration).Methods(http.MethodPost)
	r.HandleFunc("/integrations/{id}/check", s.checkIntegration).Methods(http.MethodGet)
	r.HandleFunc("/integrations/{id}/revoke", s.revokeIntegration).Methods(http.MethodPost)

	// Fixed paths before /revocations/{id}: mux matches in registration order.
	r.HandleFunc("/revocations", s.createRevocation).Methods(http.MethodPost)
	r.HandleFunc("/revocations", s.listRevocations).Methods(http.MethodGet)
	r.HandleFunc("/revocations/check", s.checkRevoked).Methods(http.MethodGet)
	r.HandleFunc("/revocations/sla", s.slaMetrics).Methods(http.MethodGet)
	r.HandleFunc("/revocations/{id}", s.getRevocation).Methods(http.MethodGet)
	r.HandleFunc("/revocations/{id}/propagate", s.propagateRevocation).Methods(http.MethodPost)
	r.HandleFunc("/revocations/{id}/fail", s.failRevocation).Methods(http.MethodPost)

	r.HandleFunc("/decisions", s.recordDecision).Methods(http.MethodPost)
	r.HandleFunc("/decisions", s.listDecisions).Methods(http.MethodGet)
	r.HandleFunc("/events", s.recordEvent).Methods(http.MethodPost)

	r.HandleFunc("/analyzer/least-privilege", s.leastPrivilege).Methods(http.MethodGet)
	r.HandleFunc("/analyzer/orphans", s.orphans).Methods(http.MethodGet)
	r.HandleFunc("/analyzer/remediate", s.remediate).Methods(http.MethodPost)
	r.HandleFunc("/analyzer/abac", s.abac).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/evidence-pack", s.evidencePack).Methods(http.MethodPost)
	r.HandleFunc("/evidence-pack/reconstruct", s.reconstruct).Methods(http.MethodGet)
	r.HandleFunc("/evidence-pack/validate", s.validate).Methods(http.MethodPost)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type apiError struct {
	Error      string                 `json:"error"`
	Field      string                 `json:"field,omitempty"`
	Violations []engine.ToolViolation `json:"violations,omitempty"`
}

// traceOf returns the caller's trace id from X-Correlation-Id, or "" so
// the engine either generates one or reuses the record's own trace.
func traceOf(r *http.Request) string {
	h := r.Header.Get(correlation.HeaderName)
	if h == "" {
		return ""
	}
	return correlation.Parse(h).TraceID
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, traceID string, v any) {
	w.Header().Set("Content-Type", "application/json")
	if traceID != "" {
		w.Header().Set(correlation.HeaderName, correlation.Context{TraceID: traceID}.Headers())
	}
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("WARN encode response: %v", err)
	}
}

// writeError maps the engine error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := apiError{Error: err.Error()}
	status := statusOf(err)

	var ce *engine.ClassificationError
	if errors.As(err, &ce) {
		body.Violations = ce.Violations
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.Printf("ERROR %s %s: %v", r.Method, r.URL.Path, err)
	}
	s.writeJSON(w, status, traceOf(r), body)
}

func statusOf(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, model.ErrIllegalTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return model.Invalid("body", "unreadable")
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return model.Invalid("body", "must be valid JSON: "+err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.Invalid(name, "must be an integer")
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, model.Invalid(name, "must be a number")
	}
	return f, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, model.Invalid(name, "must be true or false")
	}
	return b, nil
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, "", map[string]string{"status": "ok"})
}
