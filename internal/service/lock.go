package service

import (
	"sync"

	"github.com/google/uuid"
)

// ownerLocks - RWMutex на каждого владельца. Мутации берут запись на всю
// последовательность "проверка, физический шаг, коммит или компенсация",
// чтения берут чтение и не видят каскад на середине.
type ownerLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*ownerLock
}

type ownerLock struct {
	sync.RWMutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{entries: make(map[uuid.UUID]*ownerLock)}
}

func (l *ownerLocks) acquire(owner uuid.UUID) *ownerLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[owner]
	if !ok {
		entry = &ownerLock{}
		l.entries[owner] = entry
	}
	entry.refs++
	return entry
}

func (l *ownerLocks) release(owner uuid.UUID, entry *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, owner)
	}
}

func (l *ownerLocks) Lock(owner uuid.UUID) (unlock func()) {
	entry := l.acquire(owner)
	entry.Lock()
	return func() {
		entry.Unlock()
		l.release(owner, entry)
	}
}

func (l *ownerLocks) RLock(owner uuid.UUID) (unlock func()) {
	entry := l.acquire(owner)
	entry.RLock()
	return func() {
		entry.RUnlock()
		l.release(owner, entry)
	}
}

func (l *ownerLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
