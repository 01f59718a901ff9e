package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/audit"
	"github.com/ppiankov/govtrail/internal/awsclient"
	"github.com/ppiankov/govtrail/internal/catalog"
	"github.com/ppiankov/govtrail/internal/classification"
	"github.com/ppiankov/govtrail/internal/config"
	"github.com/ppiankov/govtrail/internal/correlation"
	"github.com/ppiankov/govtrail/internal/engine"
	"github.com/ppiankov/govtrail/internal/eventdb"
	"github.com/ppiankov/govtrail/internal/metrics"
	"github.com/ppiankov/govtrail/internal/redact"
)

var (
	allowStyle = color.New(color.FgGreen, color.Bold)
	denyStyle  = color.New(color.FgRed, color.Bold)
	warnStyle  = color.New(color.FgYellow)
)

// runtime is an engine wired from the config file, plus what must be
// released when the command ends.
type runtime struct {
	cfg     *config.Config
	engine  *engine.Engine
	closers []func()
}

// Close waits for in-flight alerts, then releases stores and sinks.
func (r *runtime) Close() {
	r.engine.Wait()
	r.close()
}

// openRuntime loads the config and builds the engine with its journal,
// event database, catalog, metrics sink and alert dispatcher.
func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Stderr, "govtrail: ", 0)
	rt := &runtime{cfg: cfg}
	opts := engine.Options{
		StateDir:             cfg.StateDir,
		SLATargetSeconds:     cfg.Revocation.SLATargetSeconds,
		DefaultExpiryDays:    cfg.Integration.DefaultExpiryDays,
		ConformanceThreshold: cfg.Analyzer.ConformanceThreshold,
		InactivityDays:       cfg.Analyzer.InactivityDays,
		Environments:         cfg.Catalog.Environments,
		Alerts:               alert.NewDispatcher(cfg.Alerts, logger),
		Logger:               logger,
	}
	if !cfg.Redact.Disabled {
		opts.Redactor = redact.New(cfg.Redact.ExtraKeys)
	}

	if cfg.JournalPath != "" {
		j, err := audit.OpenJournal(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit journal: %w", err)
		}
		rt.closers = append(rt.closers, func() { j.Close() })
		opts.Sinks = append(opts.Sinks, j)
		opts.Sources = append(opts.Sources, j)
	}
	if cfg.EventDBPath != "" {
		db, err := eventdb.Open(cfg.EventDBPath)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("failed to open event database: %w", err)
		}
		rt.closers = append(rt.closers, func() { db.Close() })
		opts.Sinks = append(opts.Sinks, db)
		opts.Sources = append(opts.Sources, db)
	}

	holder, err := classification.NewHolder(cfg.ClassificationPath)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to load tool classification: %w", err)
	}
	opts.Classification = holder

	var aws *awsclient.Clients
	if cfg.Catalog.Source == config.CatalogIAM || cfg.Metrics.Sink == config.MetricsCloudWatch {
		aws, err = awsclient.New(ctx, cfg.AWS)
		if err != nil {
			rt.close()
			return nil, err
		}
	}

	switch cfg.Catalog.Source {
	case config.CatalogIAM:
		c := catalog.NewIAM(aws.IAM)
		c.PathPrefix = cfg.Catalog.PathPrefix
		opts.Catalog = c
	default:
		opts.Catalog = catalog.NewStatic(cfg.Catalog.StaticPath)
	}

	switch cfg.Metrics.Sink {
	case config.MetricsCloudWatch:
		cw := metrics.NewCloudWatchSink(aws.CloudWatch, cfg.Metrics.Namespace, 0, logger)
		rt.closers = append(rt.closers, cw.Close)
		opts.Metrics = cw
	case config.MetricsNone:
		opts.Metrics = metrics.Nop{}
	default:
		opts.Metrics = metrics.NewStderr()
	}

	e, err := engine.New(opts)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	rt.engine = e
	return rt, nil
}

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// withRuntime runs fn against a freshly opened runtime.
func withRuntime(ctx context.Context, fn func(e *engine.Engine) error) error {
	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt.engine)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// printTrace reports the correlation id on stderr so stdout stays JSON.
func printTrace(id string) {
	if id != "" {
		fmt.Fprintf(os.Stderr, "%s: %s\n", correlation.HeaderName, correlation.Context{TraceID: id}.Headers())
	}
}

func verdict(ok bool, allow, deny string) string {
	if ok {
		return allowStyle.Sprint(allow)
	}
	return denyStyle.Sprint(deny)
}
