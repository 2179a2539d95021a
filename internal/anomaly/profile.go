package anomaly

import (
	"riskwatch/internal/model"
)

// Profile summarizes a user's login history for anomaly detection and
// behavioral correlation.
type Profile struct {
	TotalLogins   int
	HourCounts    [24]int
	NormalHours   map[int]struct{}
	KnownIPs      map[string]struct{}
	WeekendLogins int
	WeekendRatio  float64

	// RareWeekendUser is set for users with enough history (>= 10
	// logins) whose weekend share is below 10%.
	RareWeekendUser bool
}

const (
	minLoginsForWeekendBaseline = 10
	rareWeekendRatio            = 0.10
)

// BuildProfile derives the login profile. Normal hours are the
// histogram buckets holding at least half the per-hour average.
func BuildProfile(logins []model.LoginRecord) Profile {
	p := Profile{
		NormalHours: make(map[int]struct{}),
		KnownIPs:    make(map[string]struct{}),
	}
	for _, rec := range logins {
		if rec.Hour >= 0 && rec.Hour < 24 {
			p.HourCounts[rec.Hour]++
		}
		if rec.SourceIP != "" {
			p.KnownIPs[rec.SourceIP] = struct{}{}
		}
		if rec.Weekend {
			p.WeekendLogins++
		}
		p.TotalLogins++
	}
	if p.TotalLogins == 0 {
		return p
	}
	avg := float64(p.TotalLogins) / 24.0
	cutoff := 0.5 * avg
	for hour, count := range p.HourCounts {
		if float64(count) >= cutoff && count > 0 {
			p.NormalHours[hour] = struct{}{}
		}
	}
	p.WeekendRatio = float64(p.WeekendLogins) / float64(p.TotalLogins)
	p.RareWeekendUser = p.TotalLogins >= minLoginsForWeekendBaseline && p.WeekendRatio < rareWeekendRatio
	return p
}

// IsNormalHour reports whether hour is inside the user's usual
// activity band.
func (p Profile) IsNormalHour(hour int) bool {
	_, ok := p.NormalHours[hour]
	return ok
}
