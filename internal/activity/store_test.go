package activity

import (
	"testing"
	"time"

	"riskwatch/internal/model"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	records := []model.LoginRecord{
		model.NewLoginRecord(ts("2026-03-02T09:00:00Z"), "10.0.0.1"),
		model.NewLoginRecord(ts("2026-03-02T17:00:00Z"), "10.0.0.1"),
		model.NewLoginRecord(ts("2026-03-03T09:30:00Z"), "10.0.0.2"),
	}
	if err := s.AddLoginHistory("u1", "alice", records); err != nil {
		t.Fatalf("add login history: %v", err)
	}
	return s
}

func TestAddLoginHistoryOnce(t *testing.T) {
	s := seededStore(t)
	if err := s.AddLoginHistory("u1", "alice", nil); err == nil {
		t.Fatalf("second load for the same user must fail")
	}
	if err := s.AddLoginHistory("", "x", nil); err == nil {
		t.Fatalf("empty user id must fail")
	}
	if s.Len() != 1 {
		t.Fatalf("store size = %d, want 1", s.Len())
	}
}

func TestAddWarningRecomputes(t *testing.T) {
	s := seededStore(t)
	s.AddWarning(model.Warning{UserID: "u1", Severity: model.SeverityHigh, Message: "m1"})
	sum, ok := s.Summary("u1")
	if !ok {
		t.Fatalf("summary missing")
	}
	if sum.RiskScore != 25 || sum.RiskLevel != model.RiskLevelHigh {
		t.Fatalf("after one high warning: score=%d level=%s", sum.RiskScore, sum.RiskLevel)
	}
	s.AddWarning(model.Warning{UserID: "u1", Severity: model.SeverityLow, Message: "m2"})
	sum, _ = s.Summary("u1")
	if sum.RiskScore != 30 {
		t.Fatalf("score = %d, want 30", sum.RiskScore)
	}
	if sum.WarningCounts[model.SeverityHigh] != 1 || sum.WarningCounts[model.SeverityLow] != 1 {
		t.Fatalf("warning counts = %v", sum.WarningCounts)
	}
}

func TestReplaceAnomaliesRecomputes(t *testing.T) {
	s := seededStore(t)
	s.ReplaceAnomalies("u1", []model.Anomaly{
		{Type: model.AnomalyUnusualHours, Severity: model.SeverityMedium, Description: "odd hour"},
	})
	sum, _ := s.Summary("u1")
	if sum.RiskScore != 15 {
		t.Fatalf("score = %d, want 15", sum.RiskScore)
	}
	// A later pass replaces, never appends.
	s.ReplaceAnomalies("u1", nil)
	sum, _ = s.Summary("u1")
	if sum.RiskScore != 0 || sum.RiskLevel != model.RiskLevelNone {
		t.Fatalf("after clearing anomalies: score=%d level=%s", sum.RiskScore, sum.RiskLevel)
	}
}

func TestSummaryLoginStats(t *testing.T) {
	s := seededStore(t)
	sum, ok := s.Summary("u1")
	if !ok {
		t.Fatalf("summary missing")
	}
	if sum.Username != "alice" {
		t.Fatalf("username = %q", sum.Username)
	}
	if sum.LoginStats.TotalLogins != 3 || sum.LoginStats.UniqueDays != 2 {
		t.Fatalf("login stats = %+v", sum.LoginStats)
	}
	if !sum.LoginStats.FirstLogin.Equal(ts("2026-03-02T09:00:00Z")) {
		t.Fatalf("first login = %v", sum.LoginStats.FirstLogin)
	}
	if !sum.LoginStats.LastLogin.Equal(ts("2026-03-03T09:30:00Z")) {
		t.Fatalf("last login = %v", sum.LoginStats.LastLogin)
	}
	if _, ok := s.Summary("nobody"); ok {
		t.Fatalf("unknown user must not have a summary")
	}
}

func TestCSVPlaceholderRow(t *testing.T) {
	s := seededStore(t)
	rows := s.CSVRows("u1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 placeholder row, got %d", len(rows))
	}
	row := rows[0]
	if len(row) != len(CSVHeader()) {
		t.Fatalf("row width %d != header width %d", len(row), len(CSVHeader()))
	}
	if row[0] != "u1" || row[6] != "no warnings" {
		t.Fatalf("placeholder row = %v", row)
	}
	if s.CSVRows("nobody") != nil {
		t.Fatalf("unknown user must yield nil rows")
	}
}

func TestCSVWarningRows(t *testing.T) {
	s := seededStore(t)
	s.AddWarning(model.Warning{
		UserID:    "u1",
		Date:      "2026-03-02",
		Timestamp: ts("2026-03-02T10:15:00Z"),
		Message:   "Repeated failed logins",
		Severity:  model.SeverityMedium,
		EventType: "failed_login",
		ClientIP:  "10.0.0.1",
	})
	rows := s.CSVRows("u1")
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	row := rows[0]
	want := []string{"u1", "alice", "2026-03-02", "10:15:00", "failed_login", "medium", "Repeated failed logins", "10.0.0.1", "15", "low"}
	for i := range want {
		if row[i] != want[i] {
			t.Fatalf("column %d = %q, want %q (row %v)", i, row[i], want[i], row)
		}
	}
}

func TestAccessorsCopy(t *testing.T) {
	s := seededStore(t)
	s.AddWarning(model.Warning{UserID: "u1", Severity: model.SeverityLow, Message: "m"})
	got := s.Warnings("u1")
	got[0].Message = "mutated"
	if s.Warnings("u1")[0].Message != "m" {
		t.Fatalf("accessor must return a copy")
	}
	logins := s.Logins("u1")
	logins[0].SourceIP = "mutated"
	if s.Logins("u1")[0].SourceIP == "mutated" {
		t.Fatalf("logins accessor must return a copy")
	}
}
