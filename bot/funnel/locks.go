package funnel

import "sync"

// userLocks serializes engine calls per (bot, user). Locks are never
// evicted; the per-entry footprint is a mutex and a map key.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*sync.Mutex)}
}

func (u *userLocks) lock(key string) *sync.Mutex {
	u.mu.Lock()
	m, ok := u.locks[key]
	if !ok {
		m = &sync.Mutex{}
		u.locks[key] = m
	}
	u.mu.Unlock()
	m.Lock()
	return m
}
