package identity

import (
	"sync"

	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
)

type nameLock struct {
	mu   sync.Mutex
	refs int
}

// lockMap hands out one mutex per short name. Entries are dropped once no
// goroutine holds or waits for them.
type lockMap struct {
	mu    sync.Mutex
	locks map[interfaces.ShortName]*nameLock
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[interfaces.ShortName]*nameLock)}
}

func (l *lockMap) lock(name interfaces.ShortName) func() {
	l.mu.Lock()
	nl, ok := l.locks[name]
	if !ok {
		nl = &nameLock{}
		l.locks[name] = nl
	}
	nl.refs++
	l.mu.Unlock()

	nl.mu.Lock()

	return func() {
		nl.mu.Unlock()

		l.mu.Lock()
		nl.refs--
		if nl.refs == 0 {
			delete(l.locks, name)
		}
		l.mu.Unlock()
	}
}

func (l *lockMap) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
