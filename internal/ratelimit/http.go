package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tavarakyyti/chat/internal/identity"
)

// HTTPConfig sizes the per-caller token bucket.
type HTTPConfig struct {
	RPS     float64       // sustained requests per second
	Burst   int           // bucket size
	IdleTTL time.Duration // buckets unused this long are dropped
}

// DefaultHTTPConfig allows roughly 600 requests per 15 minutes with room for
// page-load bursts.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		RPS:     600.0 / (15 * 60),
		Burst:   60,
		IdleTTL: 15 * time.Minute,
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HTTPLimiter keeps one token bucket per caller. Authenticated callers are
// keyed by user id, everyone else by remote IP.
type HTTPLimiter struct {
	cfg       HTTPConfig
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

// NewHTTPLimiter creates an HTTPLimiter. Non-positive settings fall back to
// DefaultHTTPConfig.
func NewHTTPLimiter(cfg HTTPConfig) *HTTPLimiter {
	def := DefaultHTTPConfig()
	if cfg.RPS <= 0 {
		cfg.RPS = def.RPS
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	return &HTTPLimiter{
		cfg:     cfg,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket.
func (l *HTTPLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) > l.cfg.IdleTTL {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Middleware rejects callers over their budget with 429.
func (l *HTTPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate_limited"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if id, ok := identity.FromContext(r.Context()); ok {
		return "user:" + id.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
