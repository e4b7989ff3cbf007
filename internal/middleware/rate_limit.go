package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"cookie-auth/internal/domain"
	"cookie-auth/internal/observability"
	"cookie-auth/internal/respond"

	"golang.org/x/time/rate"
)

const (
	// Maximum number of token buckets to keep in memory
	maxLimiters = 10000
	// Interval between sweeps of idle entries
	cleanupInterval = 5 * time.Minute
	// A token bucket is considered idle if not used for this duration
	limiterTTL = 15 * time.Minute
)

// Limiter decides whether a request identified by key may proceed. When it
// may not, retryAfter says how long the caller should wait.
type Limiter interface {
	Allow(key string) (allowed bool, retryAfter time.Duration)
}

// limitPolicy is implemented by limiters that can describe their quota.
type limitPolicy interface {
	Limit() int
	Window() time.Duration
}

// FixedWindowLimiter allows max requests per key in each fixed window.
// The window for a key starts at its first request.
type FixedWindowLimiter struct {
	max    int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*fixedWindow
	stopCh  chan struct{}
	stop    sync.Once
}

type fixedWindow struct {
	start time.Time
	count int
}

// NewFixedWindowLimiter creates a fixed window limiter and starts its
// background sweep of expired windows. Call Stop to end the sweep.
func NewFixedWindowLimiter(max int, window time.Duration) *FixedWindowLimiter {
	l := newFixedWindowLimiter(max, window, time.Now)
	go l.cleanupLoop(context.Background())
	return l
}

func newFixedWindowLimiter(max int, window time.Duration, now func() time.Time) *FixedWindowLimiter {
	return &FixedWindowLimiter{
		max:     max,
		window:  window,
		now:     now,
		windows: make(map[string]*fixedWindow),
		stopCh:  make(chan struct{}),
	}
}

func (l *FixedWindowLimiter) Allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.start.Add(l.window)) {
		w = &fixedWindow{start: now}
		l.windows[key] = w
	}

	w.count++
	if w.count > l.max {
		return false, w.start.Add(l.window).Sub(now)
	}
	return true, 0
}

func (l *FixedWindowLimiter) Limit() int { return l.max }

func (l *FixedWindowLimiter) Window() time.Duration { return l.window }

// Stop stops the cleanup goroutine
func (l *FixedWindowLimiter) Stop() {
	l.stop.Do(func() { close(l.stopCh) })
}

func (l *FixedWindowLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup removes windows that have already ended
func (l *FixedWindowLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, w := range l.windows {
		if !now.Before(w.start.Add(l.window)) {
			delete(l.windows, key)
		}
	}
}

// limiterEntry wraps a rate.Limiter with last access time
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// TokenBucketLimiter refills max tokens per window continuously, with a
// burst of max. It smooths traffic instead of resetting at window edges.
type TokenBucketLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	window   time.Duration
	stopCh   chan struct{}
	stop     sync.Once
}

// NewTokenBucketLimiter creates a token bucket limiter with automatic cleanup
func NewTokenBucketLimiter(max int, window time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(float64(max) / window.Seconds()),
		burst:    max,
		window:   window,
		stopCh:   make(chan struct{}),
	}

	go l.cleanupLoop(context.Background())

	return l
}

func (l *TokenBucketLimiter) Allow(key string) (bool, time.Duration) {
	r := l.getLimiter(key).Reserve()
	if !r.OK() {
		return false, l.window
	}
	if delay := r.Delay(); delay > 0 {
		// Denied requests must not consume a future token.
		r.Cancel()
		return false, delay
	}
	return true, 0
}

func (l *TokenBucketLimiter) Limit() int { return l.burst }

func (l *TokenBucketLimiter) Window() time.Duration { return l.window }

// Stop stops the cleanup goroutine
func (l *TokenBucketLimiter) Stop() {
	l.stop.Do(func() { close(l.stopCh) })
}

func (l *TokenBucketLimiter) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

// cleanup removes buckets that haven't been used recently, then evicts the
// oldest half if the map is still over capacity.
func (l *TokenBucketLimiter) cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, entry := range l.limiters {
		if now.Sub(entry.lastAccess) > limiterTTL {
			delete(l.limiters, key)
		}
	}

	if len(l.limiters) <= maxLimiters {
		return
	}
	for len(l.limiters) > maxLimiters/2 {
		var oldestKey string
		var oldest time.Time
		for k, e := range l.limiters {
			if oldestKey == "" || e.lastAccess.Before(oldest) {
				oldestKey, oldest = k, e.lastAccess
			}
		}
		delete(l.limiters, oldestKey)
	}
}

// getLimiter returns the bucket for key, creating it if needed
func (l *TokenBucketLimiter) getLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[key] = entry
	}
	entry.lastAccess = time.Now()
	return entry.limiter
}

type rateLimitBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit rejects requests once limiter denies their client IP, answering
// 429 with a Retry-After hint. Limiters that expose their policy get the
// window spelled out in the message.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	rejection := domain.ErrRateLimited
	limitHeader := ""
	if p, ok := limiter.(limitPolicy); ok {
		rejection = &domain.Error{
			Kind:    domain.KindRateLimited,
			Message: "Too many requests from this IP, please try again after " + humanizeWindow(p.Window()),
		}
		limitHeader = strconv.Itoa(p.Limit())
	}
	status := respond.Status(rejection.Kind)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limitHeader != "" {
				w.Header().Set("X-RateLimit-Limit", limitHeader)
			}

			allowed, retryAfter := limiter.Allow(ClientIP(r))
			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				observability.RateLimitedTotal.Inc()
				observability.SecurityEvent(r.Context(), "rate_limited", "quota exceeded",
					"remote_addr", r.RemoteAddr,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				respond.JSON(w, status, rateLimitBody{Error: rejection.Message, RetryAfter: seconds})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the request's client address without the port. This is
// the socket peer unless chi's RealIP middleware was mounted for a trusted
// proxy and replaced RemoteAddr with the forwarded address.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func humanizeWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return fmt.Sprintf("%d seconds", int(math.Ceil(d.Seconds())))
}
