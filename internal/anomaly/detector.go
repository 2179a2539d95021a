package anomaly

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"riskwatch/internal/geo"
	"riskwatch/internal/model"
)

const (
	recentWindow     = 7 * 24 * time.Hour
	rapidLocationGap = 4 * time.Hour
)

// Detector computes login-pattern anomalies. Analyze is invoked once
// per user after the login history is fully loaded; its output fully
// replaces any prior anomaly list and carries no ordering guarantee.
type Detector struct {
	resolver geo.Resolver
	logger   *slog.Logger

	// Now anchors the trailing-7-day window; overridable in tests.
	Now func() time.Time
}

func NewDetector(resolver geo.Resolver, logger *slog.Logger) *Detector {
	return &Detector{resolver: resolver, logger: logger, Now: time.Now}
}

func (d *Detector) Analyze(userID string, logins []model.LoginRecord) []model.Anomaly {
	if len(logins) == 0 {
		return nil
	}
	profile := BuildProfile(logins)
	cutoff := d.Now().Add(-recentWindow)

	var out []model.Anomaly
	out = append(out, d.unusualHours(profile, logins, cutoff)...)
	out = append(out, d.rapidLocationChanges(userID, logins)...)
	out = append(out, d.weekendActivity(profile, logins, cutoff)...)
	return out
}

// unusualHours flags recent logins whose hour falls outside the
// user's normal-hours histogram, one anomaly per distinct hour.
func (d *Detector) unusualHours(profile Profile, logins []model.LoginRecord, cutoff time.Time) []model.Anomaly {
	var out []model.Anomaly
	reported := make(map[int]struct{})
	for _, rec := range logins {
		if rec.Time.Before(cutoff) {
			continue
		}
		if profile.IsNormalHour(rec.Hour) {
			continue
		}
		if _, seen := reported[rec.Hour]; seen {
			continue
		}
		reported[rec.Hour] = struct{}{}
		out = append(out, model.Anomaly{
			Type:        model.AnomalyUnusualHours,
			Severity:    model.SeverityMedium,
			Description: fmt.Sprintf("Login at unusual hour %02d:00", rec.Hour),
			Timestamp:   rec.Time,
			Details: map[string]string{
				"hour":        fmt.Sprintf("%d", rec.Hour),
				"hour_logins": fmt.Sprintf("%d", profile.HourCounts[rec.Hour]),
			},
		})
	}
	return out
}

// rapidLocationChanges flags consecutive logins from differing
// addresses less than four hours apart when geolocation shows a
// different country or city. Any cross-location rapid
// re-authentication is treated as security-relevant; legitimate
// travel is an accepted false positive.
func (d *Detector) rapidLocationChanges(userID string, logins []model.LoginRecord) []model.Anomaly {
	ordered := make([]model.LoginRecord, len(logins))
	copy(ordered, logins)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	var out []model.Anomaly
	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if prev.SourceIP == "" || cur.SourceIP == "" || prev.SourceIP == cur.SourceIP {
			continue
		}
		gap := cur.Time.Sub(prev.Time)
		if gap >= rapidLocationGap {
			continue
		}
		gapHours := gap.Hours()

		from, fromOK := d.resolver.Lookup(prev.SourceIP)
		to, toOK := d.resolver.Lookup(cur.SourceIP)
		if !fromOK || !toOK {
			// Geolocation degraded: fall back to a lower-confidence
			// IP-only comparison instead of dropping the signal.
			if d.logger != nil {
				d.logger.Info("geo lookup failed, using ip-only comparison",
					"user_id", userID, "from_ip", prev.SourceIP, "to_ip", cur.SourceIP)
			}
			out = append(out, model.Anomaly{
				Type:        model.AnomalyRapidLocation,
				Severity:    model.SeverityHigh,
				Description: fmt.Sprintf("Address changed from %s to %s within %.1f hours (location unresolved)", prev.SourceIP, cur.SourceIP, gapHours),
				Timestamp:   cur.Time,
				Details: map[string]string{
					"geo_info": "false",
					"from_ip":  prev.SourceIP,
					"to_ip":    cur.SourceIP,
					"hours":    fmt.Sprintf("%.2f", gapHours),
				},
			})
			continue
		}
		if from.Country == to.Country && from.City == to.City {
			continue
		}
		out = append(out, model.Anomaly{
			Type:        model.AnomalyRapidLocation,
			Severity:    model.SeverityCritical,
			Multiplier:  2.0,
			Description: fmt.Sprintf("Login moved from %s/%s to %s/%s within %.1f hours", from.Country, from.City, to.Country, to.City, gapHours),
			Timestamp:   cur.Time,
			Details: map[string]string{
				"geo_info":     "true",
				"from_ip":      prev.SourceIP,
				"to_ip":        cur.SourceIP,
				"from_country": from.Country,
				"from_city":    from.City,
				"to_country":   to.Country,
				"to_city":      to.City,
				"hours":        fmt.Sprintf("%.2f", gapHours),
			},
		})
	}
	return out
}

// weekendActivity flags a recent weekend login for users whose
// history marks them as rare weekend users.
func (d *Detector) weekendActivity(profile Profile, logins []model.LoginRecord, cutoff time.Time) []model.Anomaly {
	if !profile.RareWeekendUser {
		return nil
	}
	var latest time.Time
	for _, rec := range logins {
		if rec.Weekend && !rec.Time.Before(cutoff) && rec.Time.After(latest) {
			latest = rec.Time
		}
	}
	if latest.IsZero() {
		return nil
	}
	return []model.Anomaly{{
		Type:        model.AnomalyWeekendActivity,
		Severity:    model.SeverityLow,
		Description: fmt.Sprintf("Weekend login by a rare weekend user (%.0f%% weekend share)", profile.WeekendRatio*100),
		Timestamp:   latest,
		Details: map[string]string{
			"weekend_ratio": fmt.Sprintf("%.2f", profile.WeekendRatio),
			"total_logins":  fmt.Sprintf("%d", profile.TotalLogins),
		},
	}}
}
