package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/shelfwatch/backend/internal/domain"
	"github.com/shelfwatch/backend/internal/logger"
)

// ErrDispatcherClosed is returned when a run is dispatched after Close
var ErrDispatcherClosed = errors.New("run dispatcher closed")

// RunDispatcher executes monitor runs in the background. The run record is
// created before Dispatch returns so callers can poll it immediately.
type RunDispatcher struct {
	monitor *MonitorService
	log     logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunDispatcher creates a dispatcher
func NewRunDispatcher(monitor *MonitorService, log logger.Logger) *RunDispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunDispatcher{monitor: monitor, log: log, ctx: ctx, cancel: cancel}
}

// Dispatch starts a run and returns its summary in the running state
func (d *RunDispatcher) Dispatch(ctx context.Context, req RunRequest) (*domain.RunSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}

	run, err := d.monitor.Start(ctx, &req)
	if err != nil {
		return nil, err
	}

	started := *run
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.monitor.Execute(d.ctx, run, req); err != nil {
			d.log.Warn("Background run ended with error",
				logger.String("run_id", run.ID),
				logger.Error(err),
			)
		}
	}()
	return &started, nil
}

// Close cancels in-flight runs and waits for them to stop
func (d *RunDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
