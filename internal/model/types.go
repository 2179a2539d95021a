package model

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ladder orders severities for multiplier-driven escalation.
var ladder = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) Index() int {
	for i, v := range ladder {
		if v == s {
			return i
		}
	}
	return -1
}

func SeverityAt(index int) Severity {
	if index < 0 {
		return SeverityLow
	}
	if index >= len(ladder) {
		return SeverityCritical
	}
	return ladder[index]
}

type RiskLevel string

const (
	RiskLevelNone     RiskLevel = "none"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

type Warning struct {
	UserID     string            `json:"user_id"`
	Date       string            `json:"date"`
	Timestamp  time.Time         `json:"timestamp"`
	Message    string            `json:"message"`
	Severity   Severity          `json:"severity"`
	EventType  string            `json:"event_type"`
	SessionKey string            `json:"session_key,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// DedupKey identifies a warning for global deduplication.
func (w Warning) DedupKey() string {
	return w.UserID + "|" + w.Date + "|" + w.Message
}

type LoginRecord struct {
	Time      time.Time `json:"time"`
	DayOfWeek string    `json:"day_of_week"`
	Hour      int       `json:"hour"`
	Weekend   bool      `json:"weekend"`
	SourceIP  string    `json:"source_ip"`
}

func NewLoginRecord(ts time.Time, sourceIP string) LoginRecord {
	wd := ts.Weekday()
	return LoginRecord{
		Time:      ts,
		DayOfWeek: wd.String(),
		Hour:      ts.Hour(),
		Weekend:   wd == time.Saturday || wd == time.Sunday,
		SourceIP:  sourceIP,
	}
}

type AnomalyType string

const (
	AnomalyUnusualHours    AnomalyType = "unusual_hours"
	AnomalyRapidLocation   AnomalyType = "rapid_location_change"
	AnomalyWeekendActivity AnomalyType = "weekend_activity"
)

type Anomaly struct {
	Type        AnomalyType       `json:"type"`
	Severity    Severity          `json:"severity"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp,omitzero"`
	Multiplier  float64           `json:"multiplier,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
}

// RiskFactor keeps the numeric contribution separate from the display
// text so consumers never parse points back out of a string.
type RiskFactor struct {
	Points      int    `json:"points"`
	Description string `json:"description"`
}
