package registration

import (
	"sync"

	"github.com/Belogorec/marsu-bot2/internal/model"
)

// identityLocks serializes work per participant identity.
// Entries are reference counted and dropped once no caller holds them.
type identityLocks struct {
	mu    sync.Mutex
	locks map[model.ParticipantID]*identityLock
}

type identityLock struct {
	mu   sync.Mutex
	refs int
}

func newIdentityLocks() *identityLocks {
	return &identityLocks{locks: make(map[model.ParticipantID]*identityLock)}
}

// Lock blocks until id is free and returns the matching unlock func
func (l *identityLocks) Lock(id model.ParticipantID) func() {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &identityLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *identityLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
