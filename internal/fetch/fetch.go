package fetch

import (
	"context"
	"log/slog"
	"sync"

	"riskwatch/internal/model"
)

// Source yields already-parsed activity events in source order.
// Implementations wrap whatever collector produced the rows; raw log
// parsing happens upstream of this interface.
type Source interface {
	Name() string
	Fetch(ctx context.Context, emit func(model.Event) error) error
}

// Runner drains a batch of sources. Up to `concurrency` sources fetch
// at once, but every row is handed to `handle` from a single
// goroutine, so engine callbacks never run concurrently and the final
// state depends only on the multiset of rows, not their interleaving.
type Runner struct {
	concurrency int
	logger      *slog.Logger
}

func NewRunner(concurrency int, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 5
	}
	return &Runner{concurrency: concurrency, logger: logger}
}

// Run blocks until all sources are drained and every row handled.
// A failing source is logged and contributes zero further rows; the
// rest of the batch proceeds. The returned count is rows handled.
func (r *Runner) Run(ctx context.Context, sources []Source, handle func(model.Event)) int {
	rows := make(chan model.Event, 1024)
	sem := make(chan struct{}, r.concurrency)

	var wg sync.WaitGroup
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			emit := func(ev model.Event) error {
				select {
				case rows <- ev:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := src.Fetch(ctx, emit); err != nil {
				if r.logger != nil {
					r.logger.Warn("source fetch failed, contributing zero rows", "source", src.Name(), "err", err)
				}
			}
		}(src)
	}
	go func() {
		wg.Wait()
		close(rows)
	}()

	processed := 0
	for ev := range rows {
		handle(ev)
		processed++
	}
	return processed
}

// SliceSource serves a fixed batch of events, in order.
type SliceSource struct {
	SourceName string
	Events     []model.Event
}

func (s *SliceSource) Name() string { return s.SourceName }

func (s *SliceSource) Fetch(ctx context.Context, emit func(model.Event) error) error {
	for _, ev := range s.Events {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}
