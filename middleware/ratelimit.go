package middleware

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket per client identity. It bounds how many
// frames one participant can push at the coordinator per second; a session
// of well-behaved clients never comes near it.
type RateLimiter struct {
	rate    float64
	burst   float64
	buckets map[string]*bucket
	mu      sync.Mutex
	cleanup *time.Ticker
	done    chan struct{}
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

func NewRateLimiter(ratePerSec, burst int) *RateLimiter {
	rl := &RateLimiter{
		rate:    float64(ratePerSec),
		burst:   float64(burst),
		buckets: make(map[string]*bucket),
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) Allow(id string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[id]
	if !ok {
		rl.buckets[id] = &bucket{tokens: rl.burst - 1, lastTime: now}
		return true
	}

	b.tokens += now.Sub(b.lastTime).Seconds() * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) Remove(id string) {
	rl.mu.Lock()
	delete(rl.buckets, id)
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop() {
	for {
		select {
		case <-rl.cleanup.C:
			cutoff := time.Now().Add(-10 * time.Minute)
			rl.mu.Lock()
			for id, b := range rl.buckets {
				if b.lastTime.Before(cutoff) {
					delete(rl.buckets, id)
				}
			}
			rl.mu.Unlock()
		case <-rl.done:
			return
		}
	}
}

func (rl *RateLimiter) Close() {
	rl.cleanup.Stop()
	close(rl.done)
}
