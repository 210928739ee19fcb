package scheduler

import (
	"sync"
)

// ResourceLockManager provides mutual exclusion per resource key. Each
// distinct non-empty key gets its own mutex, so tasks on different
// resources proceed concurrently while same-resource tasks serialize.
// The empty key means "no exclusivity constraint" and is never locked.
type ResourceLockManager struct {
	mu    sync.Mutex             // Guards the locks map itself
	locks map[string]*sync.Mutex // Per-key mutexes, created on first use
}

// NewResourceLockManager creates an empty lock manager.
func NewResourceLockManager() *ResourceLockManager {
	return &ResourceLockManager{
		locks: make(map[string]*sync.Mutex),
	}
}

func (r *ResourceLockManager) lockFor(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// Acquire blocks until the lock for key is held. Acquiring the empty key
// is a no-op.
func (r *ResourceLockManager) Acquire(key string) {
	if key == "" {
		return
	}
	// Acquire outside the manager lock so one busy key never blocks others.
	r.lockFor(key).Lock()
}

// TryAcquire acquires the lock for key without blocking. Returns true if
// the lock was taken (always true for the empty key).
func (r *ResourceLockManager) TryAcquire(key string) bool {
	if key == "" {
		return true
	}
	return r.lockFor(key).TryLock()
}

// Release releases the lock for key. Releasing the empty key is a no-op.
func (r *ResourceLockManager) Release(key string) {
	if key == "" {
		return
	}

	r.mu.Lock()
	l, ok := r.locks[key]
	r.mu.Unlock()

	if ok {
		l.Unlock()
	}
}
