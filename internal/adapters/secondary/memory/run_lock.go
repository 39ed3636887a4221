package memory

import (
	"context"
	"sync"
	"time"

	"github.com/lorrc/support-redistributor/internal/core/ports"
)

// RunLock is a process-local ports.RunLocker. It only protects against
// overlap inside one process.
type RunLock struct {
	mu      sync.Mutex
	held    map[string]time.Time
	nowFunc func() time.Time
}

var _ ports.RunLocker = (*RunLock)(nil)

// NewRunLock creates an in-process run lock.
func NewRunLock() *RunLock {
	return &RunLock{
		held:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// TryLock takes key unless an unexpired holder exists.
func (l *RunLock) TryLock(_ context.Context, key string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if expires, ok := l.held[key]; ok && now.Before(expires) {
		return nil, false, nil
	}

	expires := now.Add(ttl)
	l.held[key] = expires

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// A later holder may have replaced an expired entry.
			if l.held[key].Equal(expires) {
				delete(l.held, key)
			}
		})
	}
	return unlock, true, nil
}
