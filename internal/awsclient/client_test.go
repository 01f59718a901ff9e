package awsclient

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ppiankov/govtrail/internal/config"
)

// isolate keeps the default credential chain away from the host's files.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
}

func TestLoadConfigStaticCredentials(t *testing.T) {
	isolate(t)
	cfg, err := LoadConfig(context.Background(), config.AWSConfig{
		Region:          "eu-west-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Region != "eu-west-1" {
		t.Errorf("region = %s", cfg.Region)
	}
	creds, err := cfg.Credentials.Retrieve(context.Background())
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if creds.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("access key = %s", creds.AccessKeyID)
	}
}

func TestLoadConfigRejectsPartialKeys(t *testing.T) {
	isolate(t)
	if _, err := LoadConfig(context.Background(), config.AWSConfig{AccessKeyID: "AKID"}); err == nil {
		t.Fatal("expected error for access key without secret")
	}
}

func TestNewAppliesEndpoint(t *testing.T) {
	isolate(t)
	c, err := New(context.Background(), config.AWSConfig{
		Region:          "us-east-1",
		Endpoint:        "http://localhost:4566",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ep := c.IAM.Options().BaseEndpoint; ep == nil || *ep != "http://localhost:4566" {
		t.Errorf("iam endpoint = %v", ep)
	}
	if ep := c.CloudWatch.Options().BaseEndpoint; ep == nil || *ep != "http://localhost:4566" {
		t.Errorf("cloudwatch endpoint = %v", ep)
	}
}
