package activity

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"riskwatch/internal/model"
	"riskwatch/internal/score"
)

// UserActivity is the per-user state for one run: login history,
// accumulated warnings, the latest anomaly pass, and the current
// risk assessment. The store owns it exclusively.
type UserActivity struct {
	UserID     string
	Username   string
	Logins     []model.LoginRecord
	LoginDays  map[string]struct{}
	Warnings   []model.Warning
	Anomalies  []model.Anomaly
	Assessment score.Assessment

	loginsLoaded bool
}

// Store owns all user state for a run. Every mutation recomputes the
// assessment from scratch, so the risk level read through Summary is
// never stale.
type Store struct {
	mu    sync.RWMutex
	users map[string]*UserActivity
}

func NewStore() *Store {
	return &Store{users: make(map[string]*UserActivity)}
}

func (s *Store) getOrCreate(userID string) *UserActivity {
	u, ok := s.users[userID]
	if !ok {
		u = &UserActivity{UserID: userID, LoginDays: make(map[string]struct{})}
		s.users[userID] = u
	}
	return u
}

// AddLoginHistory loads the user's login records in bulk. It may be
// called once per user per run.
func (s *Store) AddLoginHistory(userID, username string, records []model.LoginRecord) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getOrCreate(userID)
	if u.loginsLoaded {
		return fmt.Errorf("login history already loaded for user %s", userID)
	}
	u.loginsLoaded = true
	if username != "" {
		u.Username = username
	}
	u.Logins = append(u.Logins, records...)
	for _, rec := range records {
		u.LoginDays[rec.Time.UTC().Format("2006-01-02")] = struct{}{}
	}
	return nil
}

// AddWarning appends a warning and recomputes immediately.
func (s *Store) AddWarning(w model.Warning) {
	if w.UserID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getOrCreate(w.UserID)
	u.Warnings = append(u.Warnings, w)
	u.Assessment = score.Compute(u.Warnings, u.Anomalies)
}

// ReplaceAnomalies swaps in the latest analysis pass wholesale and
// recomputes.
func (s *Store) ReplaceAnomalies(userID string, anomalies []model.Anomaly) {
	if userID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.getOrCreate(userID)
	u.Anomalies = anomalies
	u.Assessment = score.Compute(u.Warnings, u.Anomalies)
}

func (s *Store) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) Logins(userID string) []model.LoginRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]model.LoginRecord, len(u.Logins))
	copy(out, u.Logins)
	return out
}

func (s *Store) Warnings(userID string) []model.Warning {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]model.Warning, len(u.Warnings))
	copy(out, u.Warnings)
	return out
}

func (s *Store) Anomalies(userID string) []model.Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil
	}
	out := make([]model.Anomaly, len(u.Anomalies))
	copy(out, u.Anomalies)
	return out
}

type LoginStats struct {
	TotalLogins int       `json:"total_logins"`
	UniqueDays  int       `json:"unique_days"`
	FirstLogin  time.Time `json:"first_login,omitzero"`
	LastLogin   time.Time `json:"last_login,omitzero"`
}

type Summary struct {
	UserID        string                 `json:"user_id"`
	Username      string                 `json:"username,omitempty"`
	LoginStats    LoginStats             `json:"login_stats"`
	WarningCounts map[model.Severity]int `json:"warning_counts"`
	Anomalies     []model.Anomaly        `json:"anomalies,omitempty"`
	RiskScore     int                    `json:"risk_score"`
	RiskLevel     model.RiskLevel        `json:"risk_level"`
	RiskFactors   []model.RiskFactor     `json:"risk_factors,omitempty"`
}

// Summary recomputes the assessment and renders the report view of
// one user. The risk level is derived here, never read from a cache.
func (s *Store) Summary(userID string) (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return Summary{}, false
	}
	u.Assessment = score.Compute(u.Warnings, u.Anomalies)

	stats := LoginStats{TotalLogins: len(u.Logins), UniqueDays: len(u.LoginDays)}
	for _, rec := range u.Logins {
		if stats.FirstLogin.IsZero() || rec.Time.Before(stats.FirstLogin) {
			stats.FirstLogin = rec.Time
		}
		if rec.Time.After(stats.LastLogin) {
			stats.LastLogin = rec.Time
		}
	}
	counts := make(map[model.Severity]int)
	for _, w := range u.Warnings {
		counts[w.Severity]++
	}
	anomalies := make([]model.Anomaly, len(u.Anomalies))
	copy(anomalies, u.Anomalies)
	factors := make([]model.RiskFactor, len(u.Assessment.RiskFactors))
	copy(factors, u.Assessment.RiskFactors)

	return Summary{
		UserID:        u.UserID,
		Username:      u.Username,
		LoginStats:    stats,
		WarningCounts: counts,
		Anomalies:     anomalies,
		RiskScore:     u.Assessment.RiskScore,
		RiskLevel:     u.Assessment.Level(),
		RiskFactors:   factors,
	}, true
}

// CSVHeader names the flattened warning columns.
func CSVHeader() []string {
	return []string{"user_id", "username", "date", "time", "event_type", "severity", "message", "client_ip", "risk_score", "risk_level"}
}

// CSVRows flattens one row per warning, or a single placeholder row
// when the user has none, for the external report renderer.
func (s *Store) CSVRows(userID string) [][]string {
	summary, ok := s.Summary(userID)
	if !ok {
		return nil
	}
	warnings := s.Warnings(userID)
	scoreStr := strconv.Itoa(summary.RiskScore)
	level := string(summary.RiskLevel)
	if len(warnings) == 0 {
		return [][]string{{userID, summary.Username, "", "", "", "", "no warnings", "", scoreStr, level}}
	}
	rows := make([][]string, 0, len(warnings))
	for _, w := range warnings {
		rows = append(rows, []string{
			w.UserID,
			summary.Username,
			w.Date,
			w.Timestamp.UTC().Format("15:04:05"),
			w.EventType,
			string(w.Severity),
			w.Message,
			w.ClientIP,
			scoreStr,
			level,
		})
	}
	return rows
}
