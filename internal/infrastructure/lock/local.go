package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalPartyLocker serializes operations per party within one process.
// Slots are reference counted and removed once nobody holds or waits.
type LocalPartyLocker struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*slot
	wait  time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalPartyLocker creates a locker. A zero wait blocks until ctx is done.
func NewLocalPartyLocker(wait time.Duration) *LocalPartyLocker {
	return &LocalPartyLocker{slots: make(map[uuid.UUID]*slot), wait: wait}
}

// Lock blocks until the party is free and returns its release function.
func (l *LocalPartyLocker) Lock(ctx context.Context, partyID uuid.UUID) (func(), error) {
	s := l.acquireSlot(partyID)

	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				l.releaseSlot(partyID, s)
			})
		}, nil
	case <-waitCtx.Done():
		l.releaseSlot(partyID, s)
		return nil, busyError(partyID, ctx.Err())
	}
}

func (l *LocalPartyLocker) acquireSlot(partyID uuid.UUID) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[partyID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[partyID] = s
	}
	s.refs++
	return s
}

func (l *LocalPartyLocker) releaseSlot(partyID uuid.UUID, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, partyID)
	}
}

// Len returns the number of parties currently locked or awaited.
func (l *LocalPartyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
