package rules

import (
	"fmt"
	"log/slog"
	"strings"

	"riskwatch/internal/config"
	"riskwatch/internal/model"
)

// TimeWindow is the granularity at which a rule's counter is scoped.
type TimeWindow string

const (
	WindowSession TimeWindow = "session"
	WindowHour    TimeWindow = "hour"
	WindowDay     TimeWindow = "day"
	WindowNone    TimeWindow = "none"
)

// RiskRule configures threshold detection for one event type.
// DetectorID optionally names a registered custom detector that runs
// alongside the threshold path; keeping the binding as an id (rather
// than a function value) leaves the catalog serializable and lets the
// override merge treat it like any other field.
type RiskRule struct {
	EventType   string         `json:"event_type" yaml:"event_type"`
	Description string         `json:"description" yaml:"description"`
	Severity    model.Severity `json:"severity" yaml:"severity"`
	Threshold   int            `json:"threshold" yaml:"threshold"`
	TimeWindow  TimeWindow     `json:"time_window" yaml:"time_window"`
	CountField  string         `json:"count_field,omitempty" yaml:"count_field,omitempty"`
	DetectorID  string         `json:"detector,omitempty" yaml:"detector,omitempty"`
}

// Catalog holds at most one rule per event type. It is mutable only
// through the one-time ApplyOverrides merge at startup.
type Catalog struct {
	rules  map[string]RiskRule
	merged bool
}

func NewCatalog(rules []RiskRule) *Catalog {
	c := &Catalog{rules: make(map[string]RiskRule, len(rules))}
	for _, r := range rules {
		c.rules[r.EventType] = r
	}
	return c
}

// DefaultCatalog is the single canonical rule table. Deployment
// differences are expressed as config overrides, never as a second
// table.
func DefaultCatalog() *Catalog {
	return NewCatalog([]RiskRule{
		{EventType: "login", Description: "Login activity", Severity: model.SeverityLow, Threshold: 25, TimeWindow: WindowDay, DetectorID: DetectorOffHoursLogin},
		{EventType: "failed_login", Description: "Repeated failed logins", Severity: model.SeverityMedium, Threshold: 5, TimeWindow: WindowHour, DetectorID: DetectorFailedLoginBurst},
		{EventType: "report_export", Description: "Report exported", Severity: model.SeverityHigh, Threshold: 3, TimeWindow: WindowDay, CountField: "report_id"},
		{EventType: "bulk_download", Description: "Bulk file download", Severity: model.SeverityHigh, Threshold: 10, TimeWindow: WindowHour},
		{EventType: "data_delete", Description: "Mass record deletion", Severity: model.SeverityHigh, Threshold: 20, TimeWindow: WindowSession},
		{EventType: "permission_change", Description: "Permission modified", Severity: model.SeverityHigh, Threshold: 3, TimeWindow: WindowDay},
		{EventType: "mfa_disabled", Description: "Multi-factor authentication disabled", Severity: model.SeverityCritical, Threshold: 1, TimeWindow: WindowDay},
		{EventType: "api_token_created", Description: "API token created", Severity: model.SeverityMedium, Threshold: 2, TimeWindow: WindowDay},
		{EventType: "password_reset", Description: "Password reset requested", Severity: model.SeverityMedium, Threshold: 3, TimeWindow: WindowDay},
		{EventType: "admin_action", Description: "Administrative action", Severity: model.SeverityMedium, Threshold: 10, TimeWindow: WindowDay},
		{EventType: "sharing_change", Description: "External sharing changed", Severity: model.SeverityMedium, Threshold: 5, TimeWindow: WindowDay, CountField: "item_id"},
		{EventType: "api_call", Description: "API activity", Severity: model.SeverityLow, Threshold: 100, TimeWindow: WindowHour, DetectorID: DetectorUnlistedIP},
	})
}

func (c *Catalog) Get(eventType string) (RiskRule, bool) {
	r, ok := c.rules[eventType]
	return r, ok
}

func (c *Catalog) Len() int {
	return len(c.rules)
}

func (c *Catalog) EventTypes() []string {
	out := make([]string, 0, len(c.rules))
	for t := range c.rules {
		out = append(out, t)
	}
	return out
}

// ApplyOverrides merges partial field overrides into the catalog.
// Unknown event types are skipped with a logged warning; a second
// invocation is an error, the catalog is immutable after the merge.
func (c *Catalog) ApplyOverrides(overrides map[string]config.RuleOverride, reg *Registry, logger *slog.Logger) error {
	if c.merged {
		return fmt.Errorf("rule overrides already applied")
	}
	c.merged = true
	for eventType, ov := range overrides {
		rule, ok := c.rules[eventType]
		if !ok {
			if logger != nil {
				logger.Warn("rule override for unknown event type ignored", "event_type", eventType)
			}
			continue
		}
		if ov.Description != nil {
			rule.Description = *ov.Description
		}
		if ov.Severity != nil {
			rule.Severity = model.Severity(strings.ToLower(*ov.Severity))
		}
		if ov.Threshold != nil {
			rule.Threshold = *ov.Threshold
		}
		if ov.TimeWindow != nil {
			rule.TimeWindow = TimeWindow(strings.ToLower(*ov.TimeWindow))
		}
		if ov.CountField != nil {
			rule.CountField = *ov.CountField
		}
		if ov.Detector != nil {
			id := *ov.Detector
			if id != "" && reg != nil && !reg.Has(id) {
				if logger != nil {
					logger.Warn("rule override names unregistered detector, binding ignored", "event_type", eventType, "detector", id)
				}
			} else {
				rule.DetectorID = id
			}
		}
		c.rules[eventType] = rule
	}
	return nil
}
