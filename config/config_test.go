package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestDefaultWorkers(t *testing.T) {
	if got, want := Default().Workers, runtime.NumCPU(); got != want {
		t.Errorf("default workers = %d, want %d", got, want)
	}

	t.Setenv("MAX_PARALLEL_WORKERS", "2")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 2 {
		t.Errorf("workers = %d, want 2", cfg.Workers)
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Fatalf("default config invalid: %v", errs)
	}
	if cfg.Converter.Timeout != 30*time.Minute {
		t.Errorf("converter timeout = %v, want 30m", cfg.Converter.Timeout)
	}
	if cfg.Selection.Headroom != 0.2 {
		t.Errorf("headroom = %v, want 0.2", cfg.Selection.Headroom)
	}
	if cfg.Analysis.ExpectedRows != 8761 {
		t.Errorf("expected rows = %d, want 8761", cfg.Analysis.ExpectedRows)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q, want 8080", cfg.Server.Port)
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("MAX_PARALLEL_WORKERS", "3")
	t.Setenv("ARCHETYPE_SELECTION_SEED", "abc")
	t.Setenv("ANALYSIS_RANDOM_SEED", "42")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("workers = %d, want 3", cfg.Workers)
	}
	if cfg.Selection.Seed != "abc" {
		t.Errorf("selection seed = %q, want abc", cfg.Selection.Seed)
	}
	if cfg.Analysis.Seed != "42" {
		t.Errorf("analysis seed = %q, want 42", cfg.Analysis.Seed)
	}
}

func TestPrefixedEnvironmentWins(t *testing.T) {
	t.Setenv("MAX_PARALLEL_WORKERS", "3")
	t.Setenv("ORCHESTRATOR_WORKERS", "5")
	t.Setenv("ORCHESTRATOR_SERVER_PORT", "9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Workers != 5 {
		t.Errorf("workers = %d, want 5", cfg.Workers)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q, want 9090", cfg.Server.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	content := `
paths:
  communities_dir: /srv/communities
workers: 2
selection:
  seed: fixed
  headroom: 0.5
converter:
  timeout: 45s
  keep_output: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Paths.CommunitiesDir != "/srv/communities" {
		t.Errorf("communities dir = %q", cfg.Paths.CommunitiesDir)
	}
	if cfg.Workers != 2 || cfg.Selection.Seed != "fixed" || cfg.Selection.Headroom != 0.5 {
		t.Errorf("unexpected values: %+v", cfg)
	}
	if cfg.Converter.Timeout != 45*time.Second || !cfg.Converter.KeepOutput {
		t.Errorf("converter = %+v", cfg.Converter)
	}
	// untouched keys keep their defaults
	if cfg.Converter.Args != DefaultConverterArgs {
		t.Errorf("converter args = %q", cfg.Converter.Args)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"negative headroom", func(c *Config) { c.Selection.Headroom = -0.1 }, "selection.headroom"},
		{"empty library", func(c *Config) { c.Paths.LibraryDir = " " }, "paths.library_dir"},
		{"args without input", func(c *Config) { c.Converter.Args = "run" }, "converter.args"},
		{"zero timeout", func(c *Config) { c.Converter.Timeout = 0 }, "converter.timeout"},
		{"unknown backend", func(c *Config) { c.ObjectStore.Backend = "gcs" }, "objectstore.backend"},
		{"minio without endpoint", func(c *Config) { c.ObjectStore.Backend = "minio" }, "objectstore.endpoint"},
		{"endpoint with scheme", func(c *Config) { c.ObjectStore.Endpoint = "http://minio:9000" }, "objectstore.endpoint"},
		{"brokers without topic", func(c *Config) {
			c.Kafka.Brokers = []string{"localhost:9092"}
			c.Kafka.Topic = ""
		}, "kafka.topic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			found := false
			for _, e := range errs {
				if e.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestValidationErrorsMessage(t *testing.T) {
	errs := ValidationErrors{
		{Field: "workers", Value: 0, Message: "must be at least 1"},
		{Field: "converter.binary", Value: "", Message: "must not be empty"},
	}
	msg := errs.Error()
	if !strings.Contains(msg, "2 validation errors") || !strings.Contains(msg, "converter.binary") {
		t.Errorf("unexpected message: %s", msg)
	}
}
