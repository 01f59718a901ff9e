// Package config loads the govtrail YAML configuration.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/govtrail/internal/alert"
	"github.com/ppiankov/govtrail/internal/model"
)

// Catalog sources.
const (
	CatalogStatic = "static"
	CatalogIAM    = "iam"
)

// Metrics sinks.
const (
	MetricsStderr     = "stderr"
	MetricsCloudWatch = "cloudwatch"
	MetricsNone       = "none"
)

// RevocationConfig configures the revocation registry.
type RevocationConfig struct {
	SLATargetSeconds int `yaml:"sla_target_seconds"`
}

// IntegrationConfig configures the integration registry.
type IntegrationConfig struct {
	// DefaultExpiryDays applies when an approval names no expiry. 0 means none.
	DefaultExpiryDays int `yaml:"default_expiry_days"`
}

// AnalyzerConfig configures least-privilege reporting.
type AnalyzerConfig struct {
	ConformanceThreshold float64 `yaml:"conformance_threshold"`
	InactivityDays       int     `yaml:"inactivity_days"`
}

// CatalogConfig selects the principal catalog.
type CatalogConfig struct {
	Source       string   `yaml:"source"`
	StaticPath   string   `yaml:"static_path"`
	Environments []string `yaml:"environments"`
	PathPrefix   string   `yaml:"path_prefix"`
}

// AWSConfig configures the AWS SDK clients.
type AWSConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Profile         string `yaml:"profile"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// MetricsConfig selects the metrics sink.
type MetricsConfig struct {
	Sink      string `yaml:"sink"`
	Namespace string `yaml:"namespace"`
}

// HTTPConfig configures the HTTP API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// GRPCConfig configures the gRPC service.
type GRPCConfig struct {
	Port int `yaml:"port"`
}

// RedactConfig controls scrubbing of caller-supplied audit text.
type RedactConfig struct {
	Disabled  bool     `yaml:"disabled"`
	ExtraKeys []string `yaml:"extra_keys"`
}

// Config is the full govtrail configuration.
type Config struct {
	StateDir           string              `yaml:"state_dir"`
	JournalPath        string              `yaml:"journal_path"`
	EventDBPath        string              `yaml:"event_db_path"`
	ClassificationPath string              `yaml:"classification_path"`
	Revocation         RevocationConfig    `yaml:"revocation"`
	Integration        IntegrationConfig   `yaml:"integration"`
	Analyzer           AnalyzerConfig      `yaml:"analyzer"`
	Catalog            CatalogConfig       `yaml:"catalog"`
	AWS                AWSConfig           `yaml:"aws"`
	Metrics            MetricsConfig       `yaml:"metrics"`
	HTTP               HTTPConfig          `yaml:"http"`
	GRPC               GRPCConfig          `yaml:"grpc"`
	Redact             RedactConfig        `yaml:"redact"`
	Alerts             []alert.AlertConfig `yaml:"alerts"`
}

// DefaultDir is ~/.govtrail, or .govtrail when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".govtrail"
	}
	return filepath.Join(home, ".govtrail")
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	dir := DefaultDir()
	return &Config{
		StateDir:           filepath.Join(dir, "state"),
		JournalPath:        filepath.Join(dir, "audit.jsonl"),
		EventDBPath:        filepath.Join(dir, "events.db"),
		ClassificationPath: filepath.Join(dir, "tool_classification.yaml"),
		Revocation:         RevocationConfig{SLATargetSeconds: 300},
		Analyzer:           AnalyzerConfig{ConformanceThreshold: 95, InactivityDays: 30},
		Catalog:            CatalogConfig{Source: CatalogStatic, StaticPath: filepath.Join(dir, "principals.yaml")},
		Metrics:            MetricsConfig{Sink: MetricsStderr, Namespace: "AgentCoreGovernance"},
		HTTP:               HTTPConfig{Addr: "127.0.0.1:8480"},
		GRPC:               GRPCConfig{Port: 50071},
	}
}

// Load reads the configuration at path.
// Empty path falls back to ~/.govtrail/config.yaml.
// Missing file returns defaults. Invalid YAML returns an error.
func Load(path string) (*Config, error) {
	cfg, _, err := LoadWithHash(path)
	return cfg, err
}

// LoadWithHash loads the configuration and returns the SHA-256 of the raw
// file bytes. When no file exists the hash is that of empty input.
func LoadWithHash(path string) (*Config, string, error) {
	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), hashOf(nil), nil
		}
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults, YAML overwrites only specified fields
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, hashOf(data), nil
}

// Validate checks enum and range fields.
func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case CatalogStatic, CatalogIAM:
	default:
		return model.Invalid("catalog.source", "must be static or iam")
	}
	switch c.Metrics.Sink {
	case MetricsStderr, MetricsCloudWatch, MetricsNone:
	default:
		return model.Invalid("metrics.sink", "must be stderr, cloudwatch or none")
	}
	if c.Revocation.SLATargetSeconds <= 0 {
		return model.Invalid("revocation.sla_target_seconds", "must be positive")
	}
	if c.Integration.DefaultExpiryDays < 0 {
		return model.Invalid("integration.default_expiry_days", "must not be negative")
	}
	if t := c.Analyzer.ConformanceThreshold; t < 0 || t > 100 {
		return model.Invalid("analyzer.conformance_threshold", "must be between 0 and 100")
	}
	if c.Analyzer.InactivityDays < 0 {
		return model.Invalid("analyzer.inactivity_days", "must not be negative")
	}
	for i, a := range c.Alerts {
		if strings.TrimSpace(a.URL) == "" {
			return model.Invalid(fmt.Sprintf("alerts[%d].url", i), "must not be empty")
		}
	}
	return nil
}

func hashOf(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
