package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/ratelimit"
	"go.uber.org/zap"
)

// Rate limit key strategies.
const (
	StrategyIP     = "ip"
	StrategyRoute  = "route"
	StrategyCustom = "custom"
)

// RateLimitConfig configures RateLimit.
type RateLimitConfig struct {
	// BucketName scopes the counters. Configs sharing a bucket name share limits.
	BucketName string

	// Limit is the number of requests allowed per Window.
	Limit int

	Window time.Duration

	// Strategy selects the client key: StrategyIP (default), StrategyRoute
	// (one bucket for everyone) or StrategyCustom, which calls KeyExtractor.
	Strategy string

	KeyExtractor func(*http.Request) (string, error)

	// ExceededHandler answers rejected requests. Default: 429 Too Many Requests.
	ExceededHandler http.Handler
}

// RateLimiter decides whether a request identified by key may proceed.
type RateLimiter interface {
	// Allow reports whether the request is allowed, how many requests remain in
	// the current window and how long until the window resets.
	Allow(key string, limit int, window time.Duration) (allowed bool, remaining int, reset time.Duration)
}

// WindowLimiter is a fixed window RateLimiter kept in memory. Expired
// windows are swept during Allow, so idle keys do not accumulate.
type WindowLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	start time.Time
	d     time.Duration
	count int
}

func (w *window) expired(now time.Time) bool {
	return now.Sub(w.start) >= w.d
}

// NewWindowLimiter creates an empty WindowLimiter.
func NewWindowLimiter() *WindowLimiter {
	return &WindowLimiter{windows: make(map[string]*window), now: time.Now}
}

// Allow implements RateLimiter. A non-positive window means one second and a
// non-positive limit means one request.
func (l *WindowLimiter) Allow(key string, limit int, d time.Duration) (bool, int, time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	if limit <= 0 {
		limit = 1
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= d {
		l.sweep(now)
	}

	w, ok := l.windows[key]
	if !ok || w.expired(now) {
		w = &window{start: now, d: d}
		l.windows[key] = w
	}
	reset := w.start.Add(d).Sub(now)

	if w.count >= limit {
		return false, 0, reset
	}
	w.count++
	return true, limit - w.count, reset
}

// sweep drops expired windows. Callers hold l.mu.
func (l *WindowLimiter) sweep(now time.Time) {
	for key, w := range l.windows {
		if w.expired(now) {
			delete(l.windows, key)
		}
	}
	l.lastSweep = now
}

// RateLimit rejects requests once their key has used up its window. It sets
// the X-RateLimit-* headers on every response and Retry-After on rejections.
func RateLimit(config *RateLimitConfig, limiter RateLimiter, logger *zap.Logger) Middleware {
	logger = orNop(logger)
	if limiter == nil {
		limiter = NewWindowLimiter()
	}
	return func(next http.Handler) http.Handler {
		if config == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := rateLimitKey(config, r)
			if err != nil {
				logger.Error("Failed to extract rate limit key", requestFields(r, zap.Error(err))...)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			allowed, remaining, reset := limiter.Allow(config.BucketName+":"+key, config.Limit, config.Window)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(config.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(reset).Unix(), 10))

			if !allowed {
				h.Set("Retry-After", formatSeconds(reset))
				logger.Warn("Rate limit exceeded", requestFields(r,
					zap.String("bucket", config.BucketName),
					zap.String("key", key),
					zap.Int("limit", config.Limit),
				)...)
				if config.ExceededHandler != nil {
					config.ExceededHandler.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(config *RateLimitConfig, r *http.Request) (string, error) {
	switch config.Strategy {
	case StrategyRoute:
		return "*", nil
	case StrategyCustom:
		if config.KeyExtractor != nil {
			return config.KeyExtractor(r)
		}
	}
	return requestIP(r), nil
}

// Throttle paces requests to at most rps per second using a leaky bucket.
// Unlike RateLimit it never rejects: requests over the rate wait for their
// slot. Waiting ends early, with 503, when the request context is done.
func Throttle(rps int, opts ...ratelimit.Option) Middleware {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := ratelimit.New(rps, opts...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slot := make(chan struct{})
			go func() {
				limiter.Take()
				close(slot)
			}()
			select {
			case <-slot:
				next.ServeHTTP(w, r)
			case <-r.Context().Done():
				http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			}
		})
	}
}

// formatSeconds renders d as whole seconds, rounding up.
func formatSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return strconv.FormatInt(secs, 10)
}
