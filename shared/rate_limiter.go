package shared

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RequestRateLimiter is a token bucket shared by callers that hit the same upstream or trigger
type RequestRateLimiter struct {
	name         string
	limiter      *rate.Limiter
	requestCount atomic.Int64
	deniedCount  atomic.Int64
}

// NewRequestRateLimiter allows one request per minimumDelay with the given burst
func NewRequestRateLimiter(name string, minimumDelay time.Duration, burst int) *RequestRateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Inf
	if minimumDelay > 0 {
		limit = rate.Every(minimumDelay)
	}
	return &RequestRateLimiter{
		name:    name,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// NewPerMinuteRateLimiter allows perMinute requests a minute, bursting up to perMinute.
// A non-positive perMinute disables limiting.
func NewPerMinuteRateLimiter(name string, perMinute int) *RequestRateLimiter {
	if perMinute <= 0 {
		return NewRequestRateLimiter(name, 0, 1)
	}
	return NewRequestRateLimiter(name, time.Minute/time.Duration(perMinute), perMinute)
}

// Wait blocks until a token is available or ctx is done
func (l *RequestRateLimiter) Wait(ctx context.Context) error {
	reservation := l.limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		logrus.WithFields(logrus.Fields{
			"component":     "RequestRateLimiter",
			"limiter":       l.name,
			"delay":         delay,
			"request_count": l.requestCount.Load() + 1,
		}).Debug("Enforcing rate limit delay")

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			reservation.Cancel()
			return ctx.Err()
		case <-timer.C:
		}
	}
	l.requestCount.Add(1)
	return nil
}

// Allow takes a token without blocking and reports whether one was available
func (l *RequestRateLimiter) Allow() bool {
	if !l.limiter.Allow() {
		l.deniedCount.Add(1)
		logrus.WithFields(logrus.Fields{
			"component": "RequestRateLimiter",
			"limiter":   l.name,
		}).Warn("Rate limit exceeded")
		return false
	}
	l.requestCount.Add(1)
	return true
}

// GetRequestCount returns the number of requests let through
func (l *RequestRateLimiter) GetRequestCount() int64 {
	return l.requestCount.Load()
}

// GetDeniedCount returns the number of requests rejected by Allow
func (l *RequestRateLimiter) GetDeniedCount() int64 {
	return l.deniedCount.Load()
}
