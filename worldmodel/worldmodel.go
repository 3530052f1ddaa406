// Package worldmodel holds the concurrently updated planning scene: the robot's joint state and
// the obstacle set. Reads go through a shared lock that keeps the scene frozen while held;
// updates are published whole, one revision at a time.
package worldmodel

import (
	"context"
	"sync"

	"go.viam.com/pickplace/logging"
	"go.viam.com/pickplace/utils"
)

// WorldModel is a multiple-reader, single-writer planning scene.
type WorldModel struct {
	mu       sync.RWMutex
	current  *Snapshot
	revision uint64

	// changed is closed and replaced on every publish.
	notifyMu sync.Mutex
	changed  chan struct{}

	logger logging.Logger
}

// New returns an empty WorldModel. Reads fail with ErrStateUnavailable until the first update.
func New(logger logging.Logger) *WorldModel {
	return &WorldModel{
		changed: make(chan struct{}),
		logger:  logger,
	}
}

// LockedSnapshot is a read lock on the WorldModel. While it is held no update can be published.
type LockedSnapshot struct {
	snapshot *Snapshot
	once     sync.Once
	release  func()
}

// Snapshot returns the locked scene.
func (ls *LockedSnapshot) Snapshot() *Snapshot {
	return ls.snapshot
}

// Release unlocks the WorldModel. Calling Release more than once is a no-op.
func (ls *LockedSnapshot) Release() {
	ls.once.Do(ls.release)
}

// AcquireReadLock locks the scene for reading and returns the current snapshot. The caller must
// Release it; prefer WithReadLock which cannot leak the lock.
func (wm *WorldModel) AcquireReadLock(ctx context.Context) (*LockedSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wm.mu.RLock()
	guard := utils.NewGuard(wm.mu.RUnlock)
	defer guard.OnFail()

	if wm.current == nil {
		return nil, ErrStateUnavailable
	}
	guard.Success()
	return &LockedSnapshot{snapshot: wm.current, release: wm.mu.RUnlock}, nil
}

// WithReadLock runs fn while holding the read lock. The lock is released on every exit path,
// including a panic in fn.
func (wm *WorldModel) WithReadLock(ctx context.Context, fn func(*Snapshot) error) error {
	locked, err := wm.AcquireReadLock(ctx)
	if err != nil {
		return err
	}
	defer locked.Release()
	return fn(locked.Snapshot())
}

// UpdateFromSensors publishes the next revision. It blocks until every read lock is released.
func (wm *WorldModel) UpdateFromSensors(update StateUpdate) (uint64, error) {
	wm.mu.Lock()
	next := update.apply(wm.current, wm.revision+1)
	wm.current = next
	wm.revision = next.revision
	wm.mu.Unlock()

	wm.notifyMu.Lock()
	close(wm.changed)
	wm.changed = make(chan struct{})
	wm.notifyMu.Unlock()

	wm.logger.Debugw("published world state", "revision", next.revision,
		"joints", len(next.joints), "obstacles", len(next.obstacles))
	return next.revision, nil
}

// Revision returns the latest published revision, 0 if nothing was published.
func (wm *WorldModel) Revision() uint64 {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	return wm.revision
}

// WaitForRevision blocks until a revision at or after rev has been published.
func (wm *WorldModel) WaitForRevision(ctx context.Context, rev uint64) error {
	for {
		wm.notifyMu.Lock()
		changed := wm.changed
		wm.notifyMu.Unlock()

		if wm.Revision() >= rev {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		}
	}
}
