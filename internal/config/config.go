package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel    string            `json:"log_level" yaml:"log_level"`
	Fetch       FetchConfig       `json:"fetch" yaml:"fetch"`
	Rules       RulesConfig       `json:"rules" yaml:"rules"`
	Detection   DetectionConfig   `json:"detection" yaml:"detection"`
	Correlation CorrelationConfig `json:"correlation" yaml:"correlation"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	API         APIConfig         `json:"api" yaml:"api"`
}

type FetchConfig struct {
	Concurrency int         `json:"concurrency" yaml:"concurrency"`
	Kafka       KafkaConfig `json:"kafka" yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled  bool     `json:"enabled" yaml:"enabled"`
	Brokers  []string `json:"brokers" yaml:"brokers"`
	Topic    string   `json:"topic" yaml:"topic"`
	GroupID  string   `json:"group_id" yaml:"group_id"`
	RowLimit int      `json:"row_limit" yaml:"row_limit"`
}

type RulesConfig struct {
	Overrides map[string]RuleOverride `json:"overrides" yaml:"overrides"`
}

// RuleOverride carries partial field overrides merged into the rule
// catalog at startup. Pointer fields distinguish "absent" from zero.
type RuleOverride struct {
	Description *string `json:"description,omitempty" yaml:"description,omitempty"`
	Severity    *string `json:"severity,omitempty" yaml:"severity,omitempty"`
	Threshold   *int    `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	TimeWindow  *string `json:"time_window,omitempty" yaml:"time_window,omitempty"`
	CountField  *string `json:"count_field,omitempty" yaml:"count_field,omitempty"`
	Detector    *string `json:"detector,omitempty" yaml:"detector,omitempty"`
}

type DetectionConfig struct {
	// AllowedIPs lists known-good client addresses per user id for the
	// unlisted_ip detector. Users without an entry are never flagged.
	AllowedIPs map[string][]string `json:"allowed_ips" yaml:"allowed_ips"`
}

type CorrelationConfig struct {
	WindowHours       float64 `json:"window_hours" yaml:"window_hours"`
	OffHoursWeight    float64 `json:"off_hours_weight" yaml:"off_hours_weight"`
	WeekendWeight     float64 `json:"weekend_weight" yaml:"weekend_weight"`
	UnusualIPWeight   float64 `json:"unusual_ip_weight" yaml:"unusual_ip_weight"`
	HighRiskThreshold float64 `json:"high_risk_threshold" yaml:"high_risk_threshold"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Fetch: FetchConfig{
			Concurrency: 5,
		},
		Correlation: CorrelationConfig{
			WindowHours:       1,
			OffHoursWeight:    1.3,
			WeekendWeight:     1.2,
			UnusualIPWeight:   2.0,
			HighRiskThreshold: 10,
		},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:riskwatch.db?_pragma=busy_timeout(5000)"},
		API:     APIConfig{Enabled: false, Addr: ":8081"},
	}
}

func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Fetch.Concurrency <= 0 {
		cfg.Fetch.Concurrency = 5
	}
	if cfg.Correlation.WindowHours <= 0 {
		cfg.Correlation.WindowHours = 1
	}
	if cfg.Correlation.OffHoursWeight <= 0 {
		cfg.Correlation.OffHoursWeight = 1.3
	}
	if cfg.Correlation.WeekendWeight <= 0 {
		cfg.Correlation.WeekendWeight = 1.2
	}
	if cfg.Correlation.UnusualIPWeight <= 0 {
		cfg.Correlation.UnusualIPWeight = 2.0
	}
	if cfg.Correlation.HighRiskThreshold <= 0 {
		cfg.Correlation.HighRiskThreshold = 10
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Storage.Enabled {
		switch strings.ToLower(cfg.Storage.Driver) {
		case "sqlite", "postgres", "postgresql":
		default:
			return fmt.Errorf("storage.driver %q is not supported", cfg.Storage.Driver)
		}
	}
	if cfg.Fetch.Kafka.Enabled {
		if len(cfg.Fetch.Kafka.Brokers) == 0 || cfg.Fetch.Kafka.Topic == "" || cfg.Fetch.Kafka.GroupID == "" {
			return errors.New("fetch.kafka requires brokers, topic, group_id")
		}
	}
	for eventType, ov := range cfg.Rules.Overrides {
		if eventType == "" {
			return errors.New("rules.overrides contains an empty event type")
		}
		if ov.Severity != nil {
			switch strings.ToLower(*ov.Severity) {
			case "low", "medium", "high", "critical":
			default:
				return fmt.Errorf("rules.overrides[%s].severity %q is not a severity", eventType, *ov.Severity)
			}
		}
		if ov.TimeWindow != nil {
			switch strings.ToLower(*ov.TimeWindow) {
			case "session", "hour", "day", "none":
			default:
				return fmt.Errorf("rules.overrides[%s].time_window %q is not a time window", eventType, *ov.TimeWindow)
			}
		}
		if ov.Threshold != nil && *ov.Threshold < 1 {
			return fmt.Errorf("rules.overrides[%s].threshold must be >= 1", eventType)
		}
	}
	return nil
}

func ResolvePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
