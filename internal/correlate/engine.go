package correlate

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"riskwatch/internal/activity"
	"riskwatch/internal/anomaly"
	"riskwatch/internal/config"
	"riskwatch/internal/model"
)

type Kind string

const (
	KindTemporal   Kind = "temporal"
	KindBehavioral Kind = "behavioral"
)

// Record is a weighted link between a warning and either an anomaly
// (temporal) or a behavioral pattern. Read-only output.
type Record struct {
	UserID      string  `json:"user_id"`
	Kind        Kind    `json:"kind"`
	Subtype     string  `json:"subtype"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

type Result struct {
	UserID  string   `json:"user_id"`
	Records []Record `json:"records"`
	Score   float64  `json:"score"`
}

// Base weights per anomaly type for temporal correlation.
var baseWeights = map[model.AnomalyType]float64{
	model.AnomalyRapidLocation:   3.0,
	model.AnomalyUnusualHours:    2.0,
	model.AnomalyWeekendActivity: 1.5,
}

func baseWeight(t model.AnomalyType) float64 {
	if w, ok := baseWeights[t]; ok {
		return w
	}
	return 1.0
}

func severityFactor(sev model.Severity) float64 {
	switch sev {
	case model.SeverityCritical:
		return 2.0
	case model.SeverityHigh:
		return 1.5
	case model.SeverityMedium:
		return 1.2
	default:
		return 1.0
	}
}

func proximityFactor(diff time.Duration) float64 {
	switch {
	case diff < 30*time.Minute:
		return 1.5
	case diff < time.Hour:
		return 1.2
	default:
		return 1.0
	}
}

// Engine cross-references each user's warnings against their derived
// anomalies and login profile, producing per-user correlation scores.
type Engine struct {
	cfg    config.CorrelationConfig
	logger *slog.Logger

	mu      sync.RWMutex
	results map[string]Result
}

func New(cfg config.CorrelationConfig, logger *slog.Logger) *Engine {
	return &Engine{cfg: cfg, logger: logger, results: make(map[string]Result)}
}

// AnalyzeAll correlates every user in the store. Results replace any
// prior analysis.
func (e *Engine) AnalyzeAll(store *activity.Store) map[string]Result {
	results := make(map[string]Result)
	for _, userID := range store.UserIDs() {
		res := e.analyzeUser(userID, store)
		results[userID] = res
	}
	e.mu.Lock()
	e.results = results
	e.mu.Unlock()

	out := make(map[string]Result, len(results))
	for id, r := range results {
		out[id] = r
	}
	return out
}

func (e *Engine) analyzeUser(userID string, store *activity.Store) Result {
	warnings := store.Warnings(userID)
	anomalies := store.Anomalies(userID)
	profile := anomaly.BuildProfile(store.Logins(userID))
	window := time.Duration(e.cfg.WindowHours * float64(time.Hour))

	res := Result{UserID: userID}
	for _, w := range warnings {
		if w.Timestamp.IsZero() {
			// No timestamp: temporal correlation is impossible for
			// this warning, behavioral checks still apply below.
			if e.logger != nil {
				e.logger.Info("warning without timestamp skips temporal correlation", "user_id", userID, "message", w.Message)
			}
		} else {
			for _, an := range anomalies {
				if an.Timestamp.IsZero() {
					continue
				}
				diff := w.Timestamp.Sub(an.Timestamp)
				if diff < 0 {
					diff = -diff
				}
				if diff > window {
					continue
				}
				weight := baseWeight(an.Type) * severityFactor(w.Severity) * proximityFactor(diff)
				res.Records = append(res.Records, Record{
					UserID:      userID,
					Kind:        KindTemporal,
					Subtype:     string(an.Type),
					Weight:      weight,
					Description: fmt.Sprintf("%q within %.1fh of anomaly %q", w.Message, diff.Hours(), an.Description),
				})
			}
		}
		res.Records = append(res.Records, e.behavioral(userID, w, profile)...)
	}
	for _, r := range res.Records {
		res.Score += r.Weight
	}
	return res
}

// behavioral emits pattern records independent of the anomaly list.
func (e *Engine) behavioral(userID string, w model.Warning, profile anomaly.Profile) []Record {
	var out []Record
	if !w.Timestamp.IsZero() {
		hour := w.Timestamp.UTC().Hour()
		if profile.TotalLogins > 0 && !profile.IsNormalHour(hour) {
			out = append(out, Record{
				UserID:      userID,
				Kind:        KindBehavioral,
				Subtype:     "outside_business_hours",
				Weight:      e.cfg.OffHoursWeight,
				Description: fmt.Sprintf("%q at %02d:00, outside the user's normal hours", w.Message, hour),
			})
		}
		wd := w.Timestamp.UTC().Weekday()
		if (wd == time.Saturday || wd == time.Sunday) && profile.RareWeekendUser {
			out = append(out, Record{
				UserID:      userID,
				Kind:        KindBehavioral,
				Subtype:     "weekend_warning",
				Weight:      e.cfg.WeekendWeight,
				Description: fmt.Sprintf("%q on a weekend for a rare weekend user", w.Message),
			})
		}
	}
	if w.ClientIP != "" && len(profile.KnownIPs) >= 2 {
		if _, known := profile.KnownIPs[w.ClientIP]; !known {
			out = append(out, Record{
				UserID:      userID,
				Kind:        KindBehavioral,
				Subtype:     "unusual_ip",
				Weight:      e.cfg.UnusualIPWeight,
				Description: fmt.Sprintf("%q from address %s never seen in login history", w.Message, w.ClientIP),
			})
		}
	}
	return out
}

// HighRiskUsers returns users whose correlation score meets the
// threshold, highest first; ties break by user id for determinism.
// A non-positive threshold falls back to the configured default.
func (e *Engine) HighRiskUsers(threshold float64) []Result {
	if threshold <= 0 {
		threshold = e.cfg.HighRiskThreshold
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Result, 0, len(e.results))
	for _, res := range e.results {
		if res.Score >= threshold {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}
