package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Manager runs the pipeline's workers (scheduler, cadence loops, API server)
// until the context is cancelled, then waits for all of them to drain.
type Manager struct {
	workers []Worker
}

func NewManager(ws ...Worker) *Manager {
	return &Manager{workers: ws}
}

// Start runs every worker on its own goroutine and blocks until all have
// exited. The first worker error is returned after the drain; a failing
// worker does not take the others down.
func (m *Manager) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(m.workers))
	for i, w := range m.workers {
		wg.Add(1)
		go func(i int, w Worker) {
			defer wg.Done()
			if err := w.Start(ctx); err != nil {
				slog.Error("manager: worker exited with error", "worker", i, "error", err)
				errs <- err
			}
		}(i, w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
