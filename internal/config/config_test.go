package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
log_level: debug
fetch:
  concurrency: 3
rules:
  overrides:
    report_export:
      threshold: 1
      severity: critical
detection:
  allowed_ips:
    u1: ["10.0.0.1"]
correlation:
  window_hours: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || cfg.Fetch.Concurrency != 3 {
		t.Fatalf("top level not decoded: %+v", cfg)
	}
	ov, ok := cfg.Rules.Overrides["report_export"]
	if !ok || ov.Threshold == nil || *ov.Threshold != 1 || ov.Severity == nil || *ov.Severity != "critical" {
		t.Fatalf("override not decoded: %+v", ov)
	}
	if len(cfg.Detection.AllowedIPs["u1"]) != 1 {
		t.Fatalf("allowed ips not decoded: %+v", cfg.Detection.AllowedIPs)
	}
	if cfg.Correlation.WindowHours != 2 {
		t.Fatalf("window hours = %v, want 2", cfg.Correlation.WindowHours)
	}
	// Untouched sections keep their defaults.
	if cfg.Correlation.HighRiskThreshold != 10 || cfg.API.Addr != ":8081" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
  "log_level": "warn",
  "storage": {"enabled": true, "driver": "postgres", "dsn": "postgres://localhost/riskwatch"}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if !cfg.Storage.Enabled || cfg.Storage.Driver != "postgres" {
		t.Fatalf("storage not decoded: %+v", cfg.Storage)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := writeConfig(t, "config.yaml", "   \n")
	if _, err := Load(path); err == nil {
		t.Fatalf("empty config must fail")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file must fail")
	}
}

func TestApplyDefaultsFillsZeroes(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Fetch.Concurrency != 5 {
		t.Fatalf("concurrency = %d", cfg.Fetch.Concurrency)
	}
	if cfg.Correlation.WindowHours != 1 || cfg.Correlation.HighRiskThreshold != 10 {
		t.Fatalf("correlation defaults = %+v", cfg.Correlation)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestValidateRejectsBadOverrides(t *testing.T) {
	strPtr := func(s string) *string { return &s }
	intPtr := func(i int) *int { return &i }

	cases := []struct {
		name string
		ov   RuleOverride
	}{
		{"bad severity", RuleOverride{Severity: strPtr("fatal")}},
		{"bad time window", RuleOverride{TimeWindow: strPtr("fortnight")}},
		{"zero threshold", RuleOverride{Threshold: intPtr(0)}},
	}
	for _, c := range cases {
		cfg := DefaultConfig()
		cfg.Rules.Overrides = map[string]RuleOverride{"login": c.ov}
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s must fail validation", c.name)
		}
	}
}

func TestValidateKafkaRequiresEndpoints(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Fetch.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("kafka without brokers must fail")
	}
	cfg.Fetch.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Fetch.Kafka.Topic = "activity"
	cfg.Fetch.Kafka.GroupID = "riskwatch"
	if err := Validate(cfg); err != nil {
		t.Fatalf("complete kafka config must pass: %v", err)
	}
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Driver = "oracle"
	if err := Validate(cfg); err == nil {
		t.Fatalf("unsupported driver must fail")
	}
	cfg.Storage.Driver = "sqlite"
	if err := Validate(cfg); err != nil {
		t.Fatalf("sqlite must pass: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load saved config: %v", err)
	}
	if got.LogLevel != "debug" {
		t.Fatalf("round trip lost log level: %q", got.LogLevel)
	}
}
