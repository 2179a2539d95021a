package engine

import (
	"fmt"
	"log/slog"
	"math"

	"riskwatch/internal/model"
	"riskwatch/internal/rules"
)

// Engine evaluates activity events against the rule catalog. Each
// instance owns its counter store and warning log, so independent
// engines (one per run, one per test) never share state.
type Engine struct {
	logger   *slog.Logger
	catalog  *rules.Catalog
	registry *rules.Registry
	counters *CounterStore
	warnings *WarningLog
}

func New(catalog *rules.Catalog, registry *rules.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		logger:   logger,
		catalog:  catalog,
		registry: registry,
		counters: NewCounterStore(),
		warnings: NewWarningLog(),
	}
}

// Evaluate runs both detection paths for one event and returns the
// warnings that survived global deduplication. Events without a rule,
// a user id, or a parseable timestamp produce nothing.
func (e *Engine) Evaluate(ev model.Event) []model.Warning {
	rule, ok := e.catalog.Get(ev.EventType())
	if !ok {
		return nil
	}
	userID := ev.UserID()
	ts, tsOK := ev.Timestamp()
	if userID == "" || !tsOK {
		if e.logger != nil {
			e.logger.Info("skipping malformed event", "event_type", ev.EventType(), "user_id", userID)
		}
		return nil
	}

	var out []model.Warning

	counterKey, alertKey := trackingKey(ev, rule)
	count := e.counters.Increment(counterKey, ts)
	if count >= rule.Threshold && e.counters.MarkAlerted(counterKey, alertKey) {
		w := e.newWarning(ev, rule, thresholdMessage(ev, rule), rule.Severity)
		if e.warnings.Add(w) {
			out = append(out, w)
		}
	}

	// The custom-detector path is independent of the threshold path
	// and always attempted.
	if rule.DetectorID != "" {
		if det, hit := e.runDetector(rule, ev); hit {
			msg := det.Message
			if msg == "" {
				msg = rule.Description
			}
			w := e.newWarning(ev, rule, msg, EnhanceSeverity(rule.Severity, det.Multiplier))
			if e.warnings.Add(w) {
				out = append(out, w)
			}
		}
	}
	return out
}

// runDetector isolates detector failures: a panicking detector is
// logged and its contribution skipped, everything else continues.
func (e *Engine) runDetector(rule rules.RiskRule, ev model.Event) (det rules.Detection, hit bool) {
	d, ok := e.registry.Get(rule.DetectorID)
	if !ok {
		if e.logger != nil {
			e.logger.Warn("rule references unregistered detector", "event_type", rule.EventType, "detector", rule.DetectorID)
		}
		return rules.Detection{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			if e.logger != nil {
				e.logger.Error("detector panicked, contribution skipped",
					"detector", rule.DetectorID,
					"event_type", rule.EventType,
					"panic", fmt.Sprint(r),
				)
			}
			det, hit = rules.Detection{}, false
		}
	}()
	det, hit = d.Detect(ev)
	return det, hit
}

func (e *Engine) newWarning(ev model.Event, rule rules.RiskRule, message string, severity model.Severity) model.Warning {
	ts, _ := ev.Timestamp()
	w := model.Warning{
		UserID:     ev.UserID(),
		Date:       ev.Date(),
		Timestamp:  ts,
		Message:    message,
		Severity:   severity,
		EventType:  rule.EventType,
		SessionKey: ev.SessionKey(),
		ClientIP:   ev.ClientIP(),
	}
	if rule.CountField != "" {
		if value := ev.Field(rule.CountField); value != "" {
			w.Context = map[string]string{rule.CountField: value}
		}
	}
	return w
}

// Warnings returns a copy of the global deduplicated warning list.
func (e *Engine) Warnings() []model.Warning {
	return e.warnings.All()
}

func (e *Engine) Counters() *CounterStore {
	return e.counters
}

func (e *Engine) Reset() {
	e.counters.Reset()
	e.warnings.Reset()
}

// trackingKey scopes the counter by user, time bucket and event type.
// Rules with a count field get one counter per distinct field value,
// so the threshold applies per value.
func trackingKey(ev model.Event, rule rules.RiskRule) (counterKey, alertKey string) {
	ts, _ := ev.Timestamp()
	var bucket string
	switch rule.TimeWindow {
	case rules.WindowSession:
		bucket = ev.SessionKey()
		if bucket == "" {
			bucket = ev.Date()
		}
	case rules.WindowHour:
		bucket = ts.UTC().Format("2006-01-02T15")
	case rules.WindowDay:
		bucket = ts.UTC().Format("2006-01-02")
	default:
		bucket = "-"
	}
	counterKey = ev.UserID() + "|" + bucket + "|" + rule.EventType
	alertKey = rule.EventType
	if rule.CountField != "" {
		value := ev.Field(rule.CountField)
		counterKey += "|" + value
		alertKey += "|" + value
	}
	return counterKey, alertKey
}

func thresholdMessage(ev model.Event, rule rules.RiskRule) string {
	if rule.CountField != "" {
		if value := ev.Field(rule.CountField); value != "" {
			return fmt.Sprintf("%s (%s=%s)", rule.Description, rule.CountField, value)
		}
	}
	return rule.Description
}

// EnhanceSeverity escalates base along the severity ladder by
// floor(multiplier)-1 steps, clamped at critical. Multipliers below 2
// leave the severity unchanged.
func EnhanceSeverity(base model.Severity, multiplier float64) model.Severity {
	idx := base.Index()
	if idx < 0 {
		idx = 0
	}
	bump := int(math.Floor(multiplier)) - 1
	if bump < 0 {
		bump = 0
	}
	return model.SeverityAt(idx + bump)
}
