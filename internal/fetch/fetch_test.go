package fetch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"

	"riskwatch/internal/model"
)

func events(userID string, n int) []model.Event {
	out := make([]model.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, model.Event{
			model.FieldUserID:    userID,
			model.FieldEventType: "login",
			model.FieldTimestamp: fmt.Sprintf("2026-03-02T10:%02d:00Z", i),
		})
	}
	return out
}

type failingSource struct {
	name    string
	emitted int
}

func (f *failingSource) Name() string { return f.name }

func (f *failingSource) Fetch(ctx context.Context, emit func(model.Event) error) error {
	for _, ev := range events("ux", f.emitted) {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return errors.New("connection reset")
}

func TestRunDrainsAllSources(t *testing.T) {
	sources := []Source{
		&SliceSource{SourceName: "a", Events: events("u1", 10)},
		&SliceSource{SourceName: "b", Events: events("u2", 7)},
		&SliceSource{SourceName: "c", Events: events("u3", 3)},
	}
	r := NewRunner(2, nil)
	var seen []string
	n := r.Run(context.Background(), sources, func(ev model.Event) {
		seen = append(seen, ev.UserID())
	})
	if n != 20 {
		t.Fatalf("processed = %d, want 20", n)
	}
	counts := map[string]int{}
	for _, id := range seen {
		counts[id]++
	}
	if counts["u1"] != 10 || counts["u2"] != 7 || counts["u3"] != 3 {
		t.Fatalf("per-source counts = %v", counts)
	}
}

func TestRunSingleConsumer(t *testing.T) {
	// The handler runs on one goroutine: an unguarded counter must be
	// exact even with many concurrent sources.
	sources := make([]Source, 20)
	for i := range sources {
		sources[i] = &SliceSource{SourceName: fmt.Sprintf("s%d", i), Events: events(fmt.Sprintf("u%d", i), 50)}
	}
	r := NewRunner(8, nil)
	total := 0
	n := r.Run(context.Background(), sources, func(model.Event) { total++ })
	if n != 1000 || total != 1000 {
		t.Fatalf("processed=%d counted=%d, want 1000", n, total)
	}
}

func TestRunFailedSourceContributesPartialRows(t *testing.T) {
	sources := []Source{
		&failingSource{name: "broken", emitted: 2},
		&SliceSource{SourceName: "ok", Events: events("u1", 5)},
	}
	r := NewRunner(2, nil)
	n := r.Run(context.Background(), sources, func(model.Event) {})
	if n != 7 {
		t.Fatalf("processed = %d, want 7 (2 before the failure + 5)", n)
	}
}

func TestRunPreservesWithinSourceOrder(t *testing.T) {
	src := &SliceSource{SourceName: "a", Events: events("u1", 25)}
	r := NewRunner(4, nil)
	var stamps []string
	r.Run(context.Background(), []Source{src}, func(ev model.Event) {
		stamps = append(stamps, ev[model.FieldTimestamp])
	})
	if !sort.StringsAreSorted(stamps) {
		t.Fatalf("rows from one source must arrive in source order: %v", stamps)
	}
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := &SliceSource{SourceName: "a", Events: events("u1", 5000)}
	r := NewRunner(1, nil)
	// Must terminate; the exact count depends on buffering.
	n := r.Run(ctx, []Source{src}, func(model.Event) {})
	if n > 5000 {
		t.Fatalf("processed = %d rows out of thin air", n)
	}
}

func TestRunnerDefaultConcurrency(t *testing.T) {
	r := NewRunner(0, nil)
	if r.concurrency != 5 {
		t.Fatalf("concurrency = %d, want default 5", r.concurrency)
	}
}
