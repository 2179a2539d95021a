package score

import (
	"math"

	"riskwatch/internal/model"
)

// Assessment is the pure aggregation of a user's warnings and
// anomalies. It is always recomputed from scratch; nothing here is
// incremental or cached.
type Assessment struct {
	RiskScore     int                `json:"risk_score"`
	RiskFactors   []model.RiskFactor `json:"risk_factors"`
	CriticalCount int                `json:"critical_count"`
	HighCount     int                `json:"high_count"`
	signals       int
}

const (
	pointsCritical = 40
	pointsHigh     = 25
	pointsMedium   = 15
	pointsLow      = 5
	pointsUnknown  = 2

	// Rapid relocation is scored above ordinary critical findings.
	pointsRapidLocation = 50
)

func basePoints(sev model.Severity) int {
	switch sev {
	case model.SeverityCritical:
		return pointsCritical
	case model.SeverityHigh:
		return pointsHigh
	case model.SeverityMedium:
		return pointsMedium
	case model.SeverityLow:
		return pointsLow
	default:
		return pointsUnknown
	}
}

// Compute scores the current state. Calling it twice on unchanged
// input returns identical output.
func Compute(warnings []model.Warning, anomalies []model.Anomaly) Assessment {
	a := Assessment{signals: len(warnings) + len(anomalies)}

	for _, w := range warnings {
		points := basePoints(w.Severity)
		a.RiskScore += points
		a.RiskFactors = append(a.RiskFactors, model.RiskFactor{Points: points, Description: "Warning: " + w.Message})
		countSeverity(&a, w.Severity)
	}
	for _, an := range anomalies {
		base := basePoints(an.Severity)
		if an.Type == model.AnomalyRapidLocation && an.Severity == model.SeverityCritical {
			base = pointsRapidLocation
		}
		points := base
		if an.Multiplier > 0 {
			points = int(math.Round(float64(base) * an.Multiplier))
		}
		a.RiskScore += points
		a.RiskFactors = append(a.RiskFactors, model.RiskFactor{Points: points, Description: "Anomaly: " + an.Description})
		countSeverity(&a, an.Severity)
	}
	return a
}

func countSeverity(a *Assessment, sev model.Severity) {
	switch sev {
	case model.SeverityCritical:
		a.CriticalCount++
	case model.SeverityHigh:
		a.HighCount++
	}
}

// Level derives the qualitative risk bucket. A single critical or
// high contributor floors the level regardless of the numeric score,
// so many low-severity signals can never dilute one severe event.
func (a Assessment) Level() model.RiskLevel {
	if a.CriticalCount > 0 {
		return model.RiskLevelCritical
	}
	if a.HighCount > 0 {
		return model.RiskLevelHigh
	}
	switch {
	case a.RiskScore >= 100:
		return model.RiskLevelCritical
	case a.RiskScore >= 75:
		return model.RiskLevelHigh
	case a.RiskScore >= 50:
		return model.RiskLevelMedium
	case a.RiskScore > 20:
		return model.RiskLevelLow
	}
	if a.signals == 0 {
		return model.RiskLevelNone
	}
	return model.RiskLevelLow
}
