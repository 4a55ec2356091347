package middleware

import (
	"sync"
	"time"
)

// RateLimiter implements a simple in-memory rate limiter keyed by
// account id and by client IP.
type RateLimiter struct {
	accountLimits map[string]*windowCounter
	ipLimits      map[string]*windowCounter
	mu            sync.Mutex

	accountMaxRequests int
	ipMaxRequests      int
	window             time.Duration
}

type windowCounter struct {
	requests  int
	resetTime time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(accountMaxRequests, ipMaxRequests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		accountLimits:      make(map[string]*windowCounter),
		ipLimits:           make(map[string]*windowCounter),
		accountMaxRequests: accountMaxRequests,
		ipMaxRequests:      ipMaxRequests,
		window:             window,
	}

	go rl.cleanup()

	return rl
}

// AllowAccount checks whether the account is within its request budget
func (rl *RateLimiter) AllowAccount(accountID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return allow(rl.accountLimits, accountID, rl.accountMaxRequests, rl.window)
}

// AllowIP checks whether the client IP is within its request budget
func (rl *RateLimiter) AllowIP(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return allow(rl.ipLimits, ip, rl.ipMaxRequests, rl.window)
}

func allow(limits map[string]*windowCounter, key string, max int, window time.Duration) bool {
	now := time.Now()

	limit, exists := limits[key]
	if !exists || now.After(limit.resetTime) {
		limits[key] = &windowCounter{
			requests:  1,
			resetTime: now.Add(window),
		}
		return true
	}

	if limit.requests >= max {
		return false
	}

	limit.requests++
	return true
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now()
		for key, limit := range rl.accountLimits {
			if now.After(limit.resetTime) {
				delete(rl.accountLimits, key)
			}
		}
		for key, limit := range rl.ipLimits {
			if now.After(limit.resetTime) {
				delete(rl.ipLimits, key)
			}
		}
		rl.mu.Unlock()
	}
}
