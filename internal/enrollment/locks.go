package enrollment

import "sync"

// identityLocks serializes work per identity. Entries are dropped when the
// last holder unlocks.
type identityLocks struct {
	mu    sync.Mutex
	locks map[string]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[string]*identityLock)}
}

// lock blocks until the identity is free and returns the matching unlock.
func (l *identityLocks) lock(identityID string) func() {
	l.mu.Lock()
	il, ok := l.locks[identityID]
	if !ok {
		il = &identityLock{}
		l.locks[identityID] = il
	}
	il.refs++
	l.mu.Unlock()

	il.mu.Lock()
	return func() {
		il.mu.Unlock()
		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.locks, identityID)
		}
		l.mu.Unlock()
	}
}

func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
