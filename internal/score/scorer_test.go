package score

import (
	"reflect"
	"testing"

	"riskwatch/internal/model"
)

func warn(sev model.Severity, msg string) model.Warning {
	return model.Warning{UserID: "u1", Severity: sev, Message: msg}
}

func TestComputeWarningPoints(t *testing.T) {
	cases := []struct {
		sev  model.Severity
		want int
	}{
		{model.SeverityCritical, 40},
		{model.SeverityHigh, 25},
		{model.SeverityMedium, 15},
		{model.SeverityLow, 5},
		{model.Severity("bogus"), 2},
	}
	for _, c := range cases {
		a := Compute([]model.Warning{warn(c.sev, "x")}, nil)
		if a.RiskScore != c.want {
			t.Fatalf("score for %s = %d, want %d", c.sev, a.RiskScore, c.want)
		}
		if len(a.RiskFactors) != 1 || a.RiskFactors[0].Points != c.want {
			t.Fatalf("factor for %s = %+v", c.sev, a.RiskFactors)
		}
	}
}

func TestComputeRapidLocationScore(t *testing.T) {
	an := model.Anomaly{
		Type:        model.AnomalyRapidLocation,
		Severity:    model.SeverityCritical,
		Description: "impossible travel",
		Multiplier:  2.0,
	}
	a := Compute(nil, []model.Anomaly{an})
	if a.RiskScore != 100 {
		t.Fatalf("score = %d, want 100 (base 50 x multiplier 2)", a.RiskScore)
	}
	if a.Level() != model.RiskLevelCritical {
		t.Fatalf("level = %s, want critical", a.Level())
	}
	if a.RiskFactors[0].Description != "Anomaly: impossible travel" {
		t.Fatalf("factor description = %q", a.RiskFactors[0].Description)
	}
}

func TestComputeMultiplierRounding(t *testing.T) {
	an := model.Anomaly{Type: model.AnomalyUnusualHours, Severity: model.SeverityMedium, Multiplier: 1.3}
	a := Compute(nil, []model.Anomaly{an})
	if a.RiskScore != 20 {
		t.Fatalf("score = %d, want 20 (round of 15 x 1.3)", a.RiskScore)
	}
}

func TestComputeZeroMultiplierUsesBase(t *testing.T) {
	an := model.Anomaly{Type: model.AnomalyUnusualHours, Severity: model.SeverityMedium}
	a := Compute(nil, []model.Anomaly{an})
	if a.RiskScore != 15 {
		t.Fatalf("score = %d, want 15", a.RiskScore)
	}
}

func TestComputeIdempotent(t *testing.T) {
	warnings := []model.Warning{warn(model.SeverityHigh, "a"), warn(model.SeverityLow, "b")}
	anomalies := []model.Anomaly{{Type: model.AnomalyWeekendActivity, Severity: model.SeverityLow, Description: "wknd"}}
	first := Compute(warnings, anomalies)
	second := Compute(warnings, anomalies)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("compute is not deterministic: %+v vs %+v", first, second)
	}
}

func TestLevelSeverityFloor(t *testing.T) {
	// One high warning scores only 25 points, yet floors the level.
	a := Compute([]model.Warning{warn(model.SeverityHigh, "x")}, nil)
	if a.Level() != model.RiskLevelHigh {
		t.Fatalf("level = %s, want high despite score %d", a.Level(), a.RiskScore)
	}
	a = Compute([]model.Warning{warn(model.SeverityCritical, "x")}, nil)
	if a.Level() != model.RiskLevelCritical {
		t.Fatalf("level = %s, want critical", a.Level())
	}
}

func TestLevelScoreTiers(t *testing.T) {
	medium := func(n int) []model.Warning {
		out := make([]model.Warning, n)
		for i := range out {
			out[i] = warn(model.SeverityMedium, "m")
		}
		return out
	}
	cases := []struct {
		warnings int
		want     model.RiskLevel
	}{
		{7, model.RiskLevelCritical}, // 105
		{5, model.RiskLevelHigh},     // 75
		{4, model.RiskLevelMedium},   // 60
		{2, model.RiskLevelLow},      // 30
		{1, model.RiskLevelLow},      // 15, nonzero signals
	}
	for _, c := range cases {
		a := Compute(medium(c.warnings), nil)
		if got := a.Level(); got != c.want {
			t.Fatalf("%d medium warnings (score %d): level = %s, want %s", c.warnings, a.RiskScore, got, c.want)
		}
	}
}

func TestLevelNoSignals(t *testing.T) {
	a := Compute(nil, nil)
	if a.Level() != model.RiskLevelNone {
		t.Fatalf("level = %s, want none", a.Level())
	}
	if a.RiskScore != 0 {
		t.Fatalf("score = %d, want 0", a.RiskScore)
	}
}
