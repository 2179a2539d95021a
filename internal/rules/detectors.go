package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"riskwatch/internal/model"
)

// Detection is a custom detector hit. Multiplier feeds severity
// escalation: <2 leaves the rule severity unchanged, 2 raises it one
// level, larger values raise further but never past critical.
type Detection struct {
	Message    string
	Multiplier float64
}

// Detector is a pluggable per-rule capability for detection logic the
// generic threshold model cannot express. Implementations may keep
// private tracking state, distinct from the engine's counter store.
type Detector interface {
	Detect(ev model.Event) (Detection, bool)
}

// Registry resolves detector ids bound in the rule catalog.
type Registry struct {
	mu        sync.RWMutex
	detectors map[string]Detector
}

const (
	DetectorOffHoursLogin    = "offhours_login"
	DetectorFailedLoginBurst = "failed_login_burst"
	DetectorUnlistedIP       = "unlisted_ip"
)

// NewRegistry returns a registry with the built-in detectors.
// allowedIPs seeds the unlisted_ip detector; users without an entry
// are never flagged by it.
func NewRegistry(allowedIPs map[string][]string) *Registry {
	r := &Registry{detectors: make(map[string]Detector)}
	r.detectors[DetectorOffHoursLogin] = &offHoursDetector{startHour: 6, endHour: 22}
	r.detectors[DetectorFailedLoginBurst] = newFailedLoginBurst(3, 5*time.Minute)
	r.detectors[DetectorUnlistedIP] = newUnlistedIP(allowedIPs)
	return r
}

func (r *Registry) Register(id string, d Detector) error {
	if id == "" || d == nil {
		return fmt.Errorf("detector id and implementation are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.detectors[id]; exists {
		return fmt.Errorf("detector %q already registered", id)
	}
	r.detectors[id] = d
	return nil
}

func (r *Registry) Get(id string) (Detector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.detectors[id]
	return d, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// offHoursDetector flags activity outside the working-hour band
// [startHour, endHour).
type offHoursDetector struct {
	startHour int
	endHour   int
}

func (d *offHoursDetector) Detect(ev model.Event) (Detection, bool) {
	ts, ok := ev.Timestamp()
	if !ok {
		return Detection{}, false
	}
	hour := ts.UTC().Hour()
	if hour >= d.startHour && hour < d.endHour {
		return Detection{}, false
	}
	return Detection{
		Message:    fmt.Sprintf("Login outside business hours (%02d:00 UTC)", hour),
		Multiplier: 2,
	}, true
}

// failedLoginBurst tracks per-user failure timestamps and fires when
// the count inside the trailing window reaches the burst size. State
// is private to the detector; the engine's counters never see it.
type failedLoginBurst struct {
	mu     sync.Mutex
	burst  int
	window time.Duration
	seen   map[string][]time.Time
}

func newFailedLoginBurst(burst int, window time.Duration) *failedLoginBurst {
	return &failedLoginBurst{burst: burst, window: window, seen: make(map[string][]time.Time)}
}

func (d *failedLoginBurst) Detect(ev model.Event) (Detection, bool) {
	userID := ev.UserID()
	ts, ok := ev.Timestamp()
	if userID == "" || !ok {
		return Detection{}, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	cutoff := ts.Add(-d.window)
	kept := d.seen[userID][:0]
	for _, prev := range d.seen[userID] {
		if prev.After(cutoff) {
			kept = append(kept, prev)
		}
	}
	kept = append(kept, ts)
	d.seen[userID] = kept
	if len(kept) < d.burst {
		return Detection{}, false
	}
	// The message must not embed the live count: the warning set is
	// deduplicated by message, so the text has to be identical no
	// matter which permutation of the rows crossed the burst size.
	return Detection{
		Message:    fmt.Sprintf("Failed login burst (%d within %s)", d.burst, d.window),
		Multiplier: 2,
	}, true
}

// unlistedIP flags events whose client address is absent from the
// user's configured allow list.
type unlistedIP struct {
	allowed map[string]map[string]struct{}
}

func newUnlistedIP(allowedIPs map[string][]string) *unlistedIP {
	d := &unlistedIP{allowed: make(map[string]map[string]struct{}, len(allowedIPs))}
	for userID, ips := range allowedIPs {
		set := make(map[string]struct{}, len(ips))
		for _, ip := range ips {
			ip = strings.TrimSpace(ip)
			if ip != "" {
				set[ip] = struct{}{}
			}
		}
		if len(set) > 0 {
			d.allowed[userID] = set
		}
	}
	return d
}

func (d *unlistedIP) Detect(ev model.Event) (Detection, bool) {
	userID := ev.UserID()
	ip := ev.ClientIP()
	if userID == "" || ip == "" {
		return Detection{}, false
	}
	set, ok := d.allowed[userID]
	if !ok {
		return Detection{}, false
	}
	if _, listed := set[ip]; listed {
		return Detection{}, false
	}
	return Detection{
		Message:    fmt.Sprintf("Activity from unlisted address %s", ip),
		Multiplier: 3,
	}, true
}
