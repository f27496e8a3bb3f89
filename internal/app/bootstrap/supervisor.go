package bootstrap

import (
	"context"
	"sync"

	"github.com/wolfman30/careflow-platform/pkg/logging"
)

// Supervisor runs long-lived background workers (outbox delivery,
// payment reconciliation) and waits for them to drain on shutdown.
type Supervisor struct {
	logger  *logging.Logger
	workers []worker
}

type worker struct {
	name string
	run  func(context.Context)
}

func NewSupervisor(logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{logger: logger}
}

// Add registers a worker. The run function must block until its context
// is cancelled.
func (s *Supervisor) Add(name string, run func(context.Context)) {
	if run == nil {
		return
	}
	s.workers = append(s.workers, worker{name: name, run: run})
}

// Run starts every worker and blocks until the context is cancelled and
// all workers have returned.
func (s *Supervisor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range s.workers {
		wg.Add(1)
		go func(w worker) {
			defer wg.Done()
			s.logger.Info("worker started", "worker", w.name)
			w.run(ctx)
			s.logger.Info("worker stopped", "worker", w.name)
		}(w)
	}
	wg.Wait()
}
