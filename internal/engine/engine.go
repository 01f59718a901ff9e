// Package engine is the request-level facade over the governance stores.
// Every operation runs under one correlation id: it performs the store
// transition, appends the audit events, emits metrics and dispatches alerts.
// Handlers (HTTP, gRPC, MCP, CLI) call the engine and never the stores.
package engine

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/authz"
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/chain"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/correlation"
	"github.com/ppiankov/govtrail/internal/decision"
	"github.com/ppiankov/govtrail/internal/evidence"
	"github.com/ppiankov/govtrail/internal/integration"
	"github.com/ppiankov/govtrail/internal/metrics"
	"github.com/ppiankov/govtrail/internal/redact"
	"github.com/ppiankov/govtrail/internal/revocation"
	"github.com/ppiankov/govtrail/internal/statefile"
)

// State file names under Options.StateDir.
const (
	AuthorizationFile = "authorization.json"
	IntegrationsFile  = "integrations.json"
	RevocationsFile   = "revocations.json"
)

// Options configures an Engine. The zero value is a usable in-memory engine
// with no catalog, no classification registry and metrics discarded.
type Options struct {
	// StateDir holds the JSON registry files. Empty keeps state in memory.
	StateDir string

	SLATargetSeconds     int
	DefaultExpiryDays    int
	ConformanceThreshold float64
	InactivityDays       int
	DecisionCapacity     int

	Catalog        catalog.Catalog
	Environments   []string
	Classification *classification.Holder

	Metrics metrics.Sink
	Alerts  *alert.Dispatcher

	// Redactor scrubs caller-supplied free text and metadata before it is
	// recorded. Nil records it verbatim.
	Redactor *redact.Redactor

	// Sinks receive every audit event (journal, eventdb).
	Sinks []audit.Sink
	// Sources are extra stores the reconstructor reads besides the
	// in-process event and decision logs.
	Sources []audit.Source

	Logger *log.Logger
	Now    func() time.Time
}

// Engine owns every store and collaborator.
type Engine struct {
	authz        *authz.Store
	integrations *integration.Registry
	revocations  *revocation.Registry
	decisions    *decision.Log
	events       *audit.Log

	classification *classification.Holder
	catalog        catalog.Catalog
	environments   []string
	chains         *chain.Reconstructor
	evidence       *evidence.Builder

	metrics metrics.Sink
	alerts  *alert.Dispatcher
	redact  *redact.Redactor
	logger  *log.Logger
	now     func() time.Time

	defaultExpiryDays    int
	conformanceThreshold float64
	inactivityDays       int
}

// New builds an engine, loading persisted state when StateDir is set.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		classification:       opts.Classification,
		catalog:              opts.Catalog,
		environments:         opts.Environments,
		metrics:              opts.Metrics,
		alerts:               opts.Alerts,
		redact:               opts.Redactor,
		logger:               opts.Logger,
		now:                  opts.Now,
		defaultExpiryDays:    opts.DefaultExpiryDays,
		conformanceThreshold: opts.ConformanceThreshold,
		inactivityDays:       opts.InactivityDays,
	}
	if e.metrics == nil {
		e.metrics = metrics.Nop{}
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "govtrail: ", log.LstdFlags)
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.classification == nil {
		e.classification = classification.Static(classification.Empty())
	}
	if e.inactivityDays <= 0 {
		e.inactivityDays = 30
	}
	sla := opts.SLATargetSeconds
	if sla <= 0 {
		sla = revocation.DefaultSLATargetSeconds
	}

	if opts.StateDir == "" {
		e.authz = authz.NewStore()
		e.integrations = integration.NewRegistry()
		e.revocations = revocation.NewRegistry(sla)
	} else {
		var err error
		if e.authz, err = authz.Open(filepath.Join(opts.StateDir, AuthorizationFile)); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if e.integrations, err = integration.Open(filepath.Join(opts.StateDir, IntegrationsFile)); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		if e.revocations, err = revocation.Open(filepath.Join(opts.StateDir, RevocationsFile), sla); err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
	}
	e.authz.Now = e.now
	e.integrations.Now = e.now
	e.integrations.Logger = e.logger
	e.revocations.Now = e.now

	e.decisions = decision.NewLog(opts.DecisionCapacity)
	e.decisions.Now = e.now
	e.events = audit.NewLog(opts.Sinks...)

	e.chains = chain.New(e.events, e.decisions)
	for _, s := range opts.Sources {
		e.chains.AddSource(s)
	}
	e.evidence = &evidence.Builder{
		Catalog:      opts.Catalog,
		Environments: opts.Environments,
		Decisions:    e.decisions,
		Gaps:         e.chains,
		InactiveDays: e.inactivityDays,
		Now:          e.now,
		Logger:       e.logger,
	}
	return e, nil
}

// Events returns the in-process audit log.
func (e *Engine) Events() *audit.Log { return e.events }

// Classification returns the registry holder the engine enforces.
func (e *Engine) Classification() *classification.Holder { return e.classification }

// Wait blocks until in-flight alert deliveries finish.
func (e *Engine) Wait() { e.alerts.Wait() }

// trace returns id, or a fresh trace id when the caller supplied none.
func trace(id string) string {
	if id == "" {
		return correlation.NewTraceID()
	}
	return id
}

// record appends ev to the audit log. Sink failures are logged.
func (e *Engine) record(ev audit.Event) audit.Event {
	if err := e.events.Append(ev); err != nil {
		e.logger.Printf("WARN audit sink: event %s: %v", ev.Meta().ID, err)
	}
	return ev
}

// committed drops a persistence failure that followed a committed
// transition, logging it instead. Other errors pass through.
func (e *Engine) committed(store string, err error) error {
	if err != nil && statefile.IsPersist(err) {
		e.logger.Printf("WARN %s: %v", store, err)
		return nil
	}
	return err
}

func (e *Engine) alert(ev alert.AlertEvent) {
	if ev.Timestamp == "" {
		ev.Timestamp = e.now().UTC().Format(time.RFC3339Nano)
	}
	e.alerts.Dispatch(ev)
}

// track records endpoint metrics; call it deferred with a pointer to the
// named error result.
func (e *Engine) track(endpoint string, start time.Time, err *error) {
	metrics.TrackEndpoint(e.metrics, endpoint, start, *err)
}
