package signal

import (
	"sync"
	"time"
)

// RateLimiter is a per-user sliding window over accepted attempts.
type RateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RateLimiter) Allow(username string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[username]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[username] = fresh
		return false
	}
	rl.history[username] = append(fresh, now)
	return true
}

// Forget drops the window of a user that went offline.
func (rl *RateLimiter) Forget(username string) {
	rl.mu.Lock()
	delete(rl.history, username)
	rl.mu.Unlock()
}
