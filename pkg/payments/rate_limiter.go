package payments

import (
	"sync"
	"time"
)

/*
RateLimiter is a token bucket refilled continuously at rate tokens per
second, up to capacity.
*/
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

/*
NewRateLimiter allows requests operations per interval. Non-positive values
disable limiting and Allow always succeeds.
*/
func NewRateLimiter(requests int64, interval time.Duration) *RateLimiter {
	limiter := &RateLimiter{now: time.Now}

	if requests <= 0 || interval <= 0 {
		return limiter
	}

	limiter.rate = float64(requests) / interval.Seconds()
	limiter.capacity = float64(requests)
	limiter.tokens = limiter.capacity
	limiter.last = limiter.now()

	return limiter
}

func (limiter *RateLimiter) Allow() bool {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if limiter.rate == 0 {
		return true
	}

	limiter.refill()

	if limiter.tokens < 1.0 {
		return false
	}

	limiter.tokens--

	return true
}

// WaitTime returns the time until the next token is available.
func (limiter *RateLimiter) WaitTime() time.Duration {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	if limiter.rate == 0 {
		return 0
	}

	limiter.refill()

	if limiter.tokens >= 1.0 {
		return 0
	}

	return time.Duration((1.0 - limiter.tokens) / limiter.rate * float64(time.Second))
}

func (limiter *RateLimiter) Reset() {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	limiter.tokens = limiter.capacity
	limiter.last = limiter.now()
}

func (limiter *RateLimiter) refill() {
	now := limiter.now()
	elapsed := now.Sub(limiter.last).Seconds()
	limiter.last = now
	limiter.tokens = min(limiter.capacity, limiter.tokens+elapsed*limiter.rate)
}

/*
KeyedLimiter keeps one bucket per caller, usually the client address.
*/
type KeyedLimiter struct {
	mu       sync.Mutex
	requests int64
	interval time.Duration
	buckets  map[string]*RateLimiter
}

func NewKeyedLimiter(requests int64, interval time.Duration) *KeyedLimiter {
	return &KeyedLimiter{
		requests: requests,
		interval: interval,
		buckets:  make(map[string]*RateLimiter),
	}
}

func (keyed *KeyedLimiter) Allow(key string) bool {
	keyed.mu.Lock()
	bucket, ok := keyed.buckets[key]

	if !ok {
		bucket = NewRateLimiter(keyed.requests, keyed.interval)
		keyed.buckets[key] = bucket
	}

	keyed.mu.Unlock()

	return bucket.Allow()
}
