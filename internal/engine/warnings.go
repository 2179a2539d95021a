package engine

import (
	"sync"

	"riskwatch/internal/model"
)

// WarningLog is the global warning list with deduplication by
// (user id, date, message).
type WarningLog struct {
	mu   sync.Mutex
	seen map[string]struct{}
	list []model.Warning
}

func NewWarningLog() *WarningLog {
	return &WarningLog{seen: make(map[string]struct{})}
}

// Add stores the warning unless an identical (user, date, message)
// entry exists. It reports whether the warning was kept.
func (l *WarningLog) Add(w model.Warning) bool {
	key := w.DedupKey()
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.seen[key]; dup {
		return false
	}
	l.seen[key] = struct{}{}
	l.list = append(l.list, w)
	return true
}

func (l *WarningLog) All() []model.Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Warning, len(l.list))
	copy(out, l.list)
	return out
}

func (l *WarningLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.list)
}

func (l *WarningLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen = make(map[string]struct{})
	l.list = nil
}
