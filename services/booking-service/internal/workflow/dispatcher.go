package workflow

import (
	"context"
	"log/slog"
	"sync"
)

type Executor interface {
	Execute(ctx context.Context, runID string) error
}

// Dispatcher hands a stored run to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, runID string) error
}

// InProcessDispatcher executes runs on goroutines bound to a base context,
// not to the request that created them.
type InProcessDispatcher struct {
	base   context.Context
	exec   Executor
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewInProcessDispatcher(base context.Context, exec Executor, logger *slog.Logger) *InProcessDispatcher {
	return &InProcessDispatcher{base: base, exec: exec, logger: logger}
}

func (d *InProcessDispatcher) Dispatch(_ context.Context, runID string) error {
	if err := d.base.Err(); err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.exec.Execute(d.base, runID); err != nil {
			d.logger.Error("workflow run left unfinished", "run_id", runID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned.
func (d *InProcessDispatcher) Wait() {
	d.wg.Wait()
}
