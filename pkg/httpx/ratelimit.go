package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/clockx"
	"github.com/aussiebroadwan/portal/pkg/slogx"
	"golang.org/x/time/rate"
)

// RateLimitConfig is a token bucket refilled at Requests per Window.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Burst    int
}

// Profiles used by the portal routes. Each may be overridden through
// PORTAL_RATELIMIT_<NAME>_{REQUESTS,WINDOW,BURST}.
var (
	// StrictLimit guards the credential endpoints against guessing.
	StrictLimit = RateLimitConfig{Requests: 10, Window: time.Minute, Burst: 5}

	// ModerateLimit covers authenticated API calls.
	ModerateLimit = RateLimitConfig{Requests: 120, Window: time.Minute, Burst: 30}

	// PublicLimit covers the public form endpoints.
	PublicLimit = RateLimitConfig{Requests: 30, Window: time.Minute, Burst: 10}
)

func init() {
	StrictLimit = RateLimitFromEnv("STRICT", StrictLimit)
	ModerateLimit = RateLimitFromEnv("MODERATE", ModerateLimit)
	PublicLimit = RateLimitFromEnv("PUBLIC", PublicLimit)
}

// RateLimitFromEnv applies any PORTAL_RATELIMIT_<name>_* overrides to def.
// WINDOW takes a Go duration ("30s"). Invalid values are ignored.
func RateLimitFromEnv(name string, def RateLimitConfig) RateLimitConfig {
	prefix := "PORTAL_RATELIMIT_" + name + "_"
	cfg := def

	if n, err := strconv.Atoi(os.Getenv(prefix + "REQUESTS")); err == nil && n > 0 {
		cfg.Requests = n
	}
	if d, err := time.ParseDuration(os.Getenv(prefix + "WINDOW")); err == nil && d > 0 {
		cfg.Window = d
	}
	if n, err := strconv.Atoi(os.Getenv(prefix + "BURST")); err == nil && n > 0 {
		cfg.Burst = n
	}
	return cfg
}

func (c RateLimitConfig) limit() rate.Limit {
	if c.Window <= 0 || c.Requests <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(c.Requests) / c.Window.Seconds())
}

func (c RateLimitConfig) burst() int {
	if c.Burst > 0 {
		return c.Burst
	}
	return max(c.Requests, 1)
}

// KeyFunc groups requests into buckets. An empty key bypasses the limiter.
type KeyFunc func(*http.Request) string

// ClientIP returns the caller address, trusting the first X-Forwarded-For
// hop, then X-Real-IP, then the socket peer.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BySubject keys on the authenticated subject, falling back to ClientIP.
func BySubject(r *http.Request) string {
	if sub := SubjectFromContext(r.Context()); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + ClientIP(r)
}

// RateLimitOption tweaks a limiter built by RateLimit.
type RateLimitOption func(*limiterSet)

// WithRateLimitClock replaces the wall clock, mostly for tests.
func WithRateLimitClock(c clockx.Clock) RateLimitOption {
	return func(l *limiterSet) { l.clock = c }
}

// OnRateLimited registers a hook that runs for every rejected request.
func OnRateLimited(fn func(r *http.Request, key string)) RateLimitOption {
	return func(l *limiterSet) { l.onLimited = fn }
}

// limiterSet holds one token bucket per key. Buckets that have refilled
// completely are dropped by a sweep that runs at most once per idleAfter.
type limiterSet struct {
	cfg       RateLimitConfig
	clock     clockx.Clock
	onLimited func(*http.Request, string)

	mu        sync.Mutex
	buckets   map[string]*rate.Limiter
	lastSweep time.Time
	idleAfter time.Duration
}

func (l *limiterSet) allow(key string) (bool, time.Duration) {
	now := l.clock.Now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleAfter {
		l.sweepLocked(now)
	}
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.cfg.limit(), l.cfg.burst())
		l.buckets[key] = b
	}
	l.mu.Unlock()

	if b.AllowN(now, 1) {
		return true, 0
	}
	r := b.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

func (l *limiterSet) sweepLocked(now time.Time) {
	l.lastSweep = now
	for k, b := range l.buckets {
		if b.TokensAt(now) >= float64(l.cfg.burst()) {
			delete(l.buckets, k)
		}
	}
}

// RateLimit rejects requests with 429 once the bucket for their key is
// empty. Retry-After carries the whole seconds until the next token.
func RateLimit(cfg RateLimitConfig, key KeyFunc, opts ...RateLimitOption) Middleware {
	l := &limiterSet{
		cfg:       cfg,
		clock:     clockx.Real(),
		buckets:   make(map[string]*rate.Limiter),
		idleAfter: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastSweep = l.clock.Now()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, delay := l.allow(k)
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(int((delay+time.Second-1)/time.Second), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
			w.Header().Set("X-RateLimit-Window", cfg.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retry,
			)
			if l.onLimited != nil {
				l.onLimited(r, k)
			}

			WriteError(w, http.StatusTooManyRequests, "rate_limited", "too many requests, try again later")
		})
	}
}

// RateLimitByIP is RateLimit keyed on ClientIP.
func RateLimitByIP(cfg RateLimitConfig, opts ...RateLimitOption) Middleware {
	return RateLimit(cfg, ClientIP, opts...)
}

// RateLimitBySubject is RateLimit keyed on BySubject.
func RateLimitBySubject(cfg RateLimitConfig, opts ...RateLimitOption) Middleware {
	return RateLimit(cfg, BySubject, opts...)
}
