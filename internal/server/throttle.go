package server

import (
	"sync"
	"time"
)

// chatLimiter admits at most limit accepted messages per connection inside
// a sliding window.
type chatLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func newChatLimiter(limit int, interval time.Duration) *chatLimiter {
	return &chatLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (l *chatLimiter) Allow(connId string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	windowStart := now.Add(-l.interval)

	attempts := l.history[connId]
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= l.limit {
		l.history[connId] = fresh
		return false
	}

	l.history[connId] = append(fresh, now)
	return true
}

func (l *chatLimiter) Forget(connId string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.history, connId)
}
