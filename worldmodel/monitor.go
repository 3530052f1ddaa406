package worldmodel

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"

	"go.viam.com/pickplace/logging"
)

const defaultMonitorBuffer = 16

// StateMonitor is the single writer of a WorldModel. Sensor and controller callbacks hand it
// updates from any goroutine; one background worker applies them in arrival order.
type StateMonitor struct {
	wm      *WorldModel
	updates chan queuedUpdate
	workers *goutils.StoppableWorkers
	logger  logging.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

type queuedUpdate struct {
	update StateUpdate
	// applied receives the published revision, if set.
	applied chan<- uint64
}

// NewStateMonitor starts the writer worker for wm.
func NewStateMonitor(wm *WorldModel, logger logging.Logger) *StateMonitor {
	sm := &StateMonitor{
		wm:      wm,
		updates: make(chan queuedUpdate, defaultMonitorBuffer),
		logger:  logger,
	}
	sm.workers = goutils.NewBackgroundStoppableWorkers(sm.run)
	return sm
}

func (sm *StateMonitor) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case queued := <-sm.updates:
			rev, err := sm.wm.UpdateFromSensors(queued.update)
			if err != nil {
				sm.logger.Warnw("dropping world state update", "error", err)
			}
			if queued.applied != nil {
				queued.applied <- rev
			}
		}
	}
}

// Publish queues an update. It blocks while the queue is full, until ctx is done or the monitor
// is closed.
func (sm *StateMonitor) Publish(ctx context.Context, update StateUpdate) error {
	return sm.enqueue(ctx, queuedUpdate{update: update})
}

// PublishAndWait queues an update and waits until it has been applied.
func (sm *StateMonitor) PublishAndWait(ctx context.Context, update StateUpdate) error {
	applied := make(chan uint64, 1)
	if err := sm.enqueue(ctx, queuedUpdate{update: update, applied: applied}); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sm.workers.Context().Done():
		return errMonitorClosed
	case <-applied:
		return nil
	}
}

func (sm *StateMonitor) enqueue(ctx context.Context, queued queuedUpdate) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if sm.closed {
		return errMonitorClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-sm.workers.Context().Done():
		return errMonitorClosed
	case sm.updates <- queued:
		return nil
	}
}

// Close stops the worker. Updates still queued are discarded.
func (sm *StateMonitor) Close() {
	sm.closeOnce.Do(func() {
		sm.workers.Stop()
		sm.mu.Lock()
		sm.closed = true
		sm.mu.Unlock()
	})
}
