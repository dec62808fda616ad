package voxel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memmaker/voxelstore/engine/util"
	"github.com/pkg/errors"
)

type LockMode uint8

const (
	LockRead LockMode = iota
	LockWrite
)

func (m LockMode) String() string {
	if m == LockWrite {
		return "write"
	}
	return "read"
}

// RegionLock is a granted read or write lock over a box of voxels.
// Release it with Unlock; releasing twice is a no-op.
type RegionLock struct {
	id       uint64
	mode     LockMode
	bounds   Bounds
	span     Bounds
	mgr      *lockManager
	released atomic.Bool
}

func (l *RegionLock) Mode() LockMode {
	return l.mode
}

func (l *RegionLock) Bounds() Bounds {
	return l.bounds
}

func (l *RegionLock) Unlock() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.mgr.release(l)
}

type lockRequest struct {
	id   uint64
	span Bounds
}

// lockManager grants box-shaped locks. Spans are widened to leaf granularity so
// two locks touching the same leaf always see each other. A waiting writer
// blocks every later request that intersects it.
type lockManager struct {
	mu      sync.Mutex
	nextID  uint64
	active  map[uint64]*RegionLock
	writers []lockRequest
	changed chan struct{}
	grain   int32
}

func newLockManager(grain int32) *lockManager {
	return &lockManager{
		active:  make(map[uint64]*RegionLock),
		changed: make(chan struct{}),
		grain:   grain,
	}
}

func (m *lockManager) acquire(ctx context.Context, mode LockMode, bounds Bounds) (*RegionLock, error) {
	start := time.Now()
	span := bounds.Align(m.grain)

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if mode == LockWrite {
		m.writers = append(m.writers, lockRequest{id: id, span: span})
	}
	for {
		if m.grantable(id, mode, span) {
			m.dropWriter(id)
			lock := &RegionLock{id: id, mode: mode, bounds: bounds, span: span, mgr: m}
			m.active[id] = lock
			m.mu.Unlock()
			instrumentLockWait(mode, start)
			return lock, nil
		}
		wait := m.changed
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			m.mu.Lock()
			if m.dropWriter(id) {
				m.broadcast()
			}
			m.mu.Unlock()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				lockTimeouts.WithLabelValues(mode.String()).Inc()
				util.LogLockWarning("%s lock on %v timed out after %v", mode, bounds, time.Since(start))
				return nil, errors.Wrapf(ErrLockTimeout, "%s lock on %v", mode, bounds)
			}
			return nil, errors.Wrapf(ctx.Err(), "%s lock on %v", mode, bounds)
		}
		m.mu.Lock()
	}
}

func (m *lockManager) grantable(id uint64, mode LockMode, span Bounds) bool {
	for _, held := range m.active {
		if (mode == LockWrite || held.mode == LockWrite) && held.span.Intersects(span) {
			return false
		}
	}
	for _, w := range m.writers {
		if w.id < id && w.span.Intersects(span) {
			return false
		}
	}
	return true
}

func (m *lockManager) dropWriter(id uint64) bool {
	for i, w := range m.writers {
		if w.id == id {
			m.writers = append(m.writers[:i], m.writers[i+1:]...)
			return true
		}
	}
	return false
}

func (m *lockManager) release(l *RegionLock) {
	m.mu.Lock()
	delete(m.active, l.id)
	m.broadcast()
	m.mu.Unlock()
	util.LogLockDebug("released %s lock %d on %v", l.mode, l.id, l.bounds)
}

// broadcast wakes every waiter; callers hold mu.
func (m *lockManager) broadcast() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// covers reports whether some granted lock allows mode access to the whole box.
func (m *lockManager) covers(mode LockMode, b Bounds) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, held := range m.active {
		if mode == LockWrite && held.mode != LockWrite {
			continue
		}
		if held.bounds.ContainsBounds(b) {
			return true
		}
	}
	return false
}

func (m *lockManager) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}
