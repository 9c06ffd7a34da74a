package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jerson21/santitelas-frontend-sub003/internal/domain/validation"
)

// lockEntry is a held decision lock with its expiry
type lockEntry struct {
	expiresAt time.Time
}

// InMemoryDecisionLock implements DecisionLock with a local map.
// Suitable for a single admin instance and for tests.
type InMemoryDecisionLock struct {
	mu        sync.Mutex
	entries   map[validation.ID]lockEntry
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDecisionLock creates the lock and starts its expiry sweeper
func NewInMemoryDecisionLock() *InMemoryDecisionLock {
	return newInMemoryDecisionLock(time.Now, time.Minute)
}

func newInMemoryDecisionLock(now func() time.Time, sweep time.Duration) *InMemoryDecisionLock {
	l := &InMemoryDecisionLock{
		entries:  make(map[validation.ID]lockEntry),
		now:      now,
		stopChan: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.cleanupLoop(sweep)
	return l
}

// Acquire takes the lock for id. It returns false while an unexpired holder exists.
func (l *InMemoryDecisionLock) Acquire(_ context.Context, id validation.ID, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if e, held := l.entries[id]; held && now.Before(e.expiresAt) {
		return false, nil
	}
	l.entries[id] = lockEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

// Release drops the lock for id. Releasing a free id is a no-op.
func (l *InMemoryDecisionLock) Release(_ context.Context, id validation.ID) error {
	l.mu.Lock()
	delete(l.entries, id)
	l.mu.Unlock()
	return nil
}

// Held returns the number of unexpired locks
func (l *InMemoryDecisionLock) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, e := range l.entries {
		if now.Before(e.expiresAt) {
			n++
		}
	}
	return n
}

// Close stops the sweeper. Safe to call multiple times.
func (l *InMemoryDecisionLock) Close() error {
	l.closeOnce.Do(func() {
		close(l.stopChan)
		l.wg.Wait()
	})
	return nil
}

func (l *InMemoryDecisionLock) cleanupLoop(interval time.Duration) {
	defer l.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopChan:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *InMemoryDecisionLock) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, e := range l.entries {
		if !now.Before(e.expiresAt) {
			delete(l.entries, id)
		}
	}
}

var _ validation.DecisionLock = (*InMemoryDecisionLock)(nil)
