package app

import (
	"sync"
	"time"

	"github.com/dkeye/Rendezvous/internal/core"
	"golang.org/x/time/rate"
)

// RateLimiter is a per-endpoint token bucket: limit events per interval,
// with a burst of limit.
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[core.EndpointID]*rate.Limiter
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		buckets:  make(map[core.EndpointID]*rate.Limiter),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether key may perform one more event now. A limiter with a
// non-positive limit or interval allows everything.
func (rl *RateLimiter) Allow(key core.EndpointID) bool {
	if rl == nil || rl.limit <= 0 || rl.interval <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		every := rate.Every(rl.interval / time.Duration(rl.limit))
		b = rate.NewLimiter(every, rl.limit)
		rl.buckets[key] = b
	}
	return b.AllowN(rl.now(), 1)
}

func (rl *RateLimiter) Forget(key core.EndpointID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}
