package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"grillbook/internal/config"

	"golang.org/x/time/rate"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

type rateLimiter struct {
	limiters  sync.Map
	cfg       config.APIRateLimitConfig
	trusted   []*net.IPNet
	lastSweep atomic.Int64
	now       func() time.Time
}

// newRateLimiter ignores malformed trusted proxies; config validation reports them.
func newRateLimiter(cfg config.APIRateLimitConfig) *rateLimiter {
	trusted, _ := cfg.Networks()
	l := &rateLimiter{
		cfg:     cfg,
		trusted: trusted,
		now:     time.Now,
	}
	l.lastSweep.Store(l.now().UnixNano())
	return l
}

// Wrap rejects requests over the per-client budget with 429. A non-positive RPS disables it.
func (l *rateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.cfg.RPS <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		now := l.now()
		l.prune(now)
		if !l.getLimiter(l.clientKey(r), now).Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *rateLimiter) getLimiter(key string, now time.Time) *rate.Limiter {
	if v, ok := l.limiters.Load(key); ok {
		if c, ok := v.(*clientLimiter); ok {
			c.lastSeen.Store(now.UnixNano())
			return c.limiter
		}
	}

	burst := l.cfg.Burst
	if burst <= 0 {
		burst = 5
	}

	c := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(l.cfg.RPS), burst)}
	c.lastSeen.Store(now.UnixNano())
	actual, loaded := l.limiters.LoadOrStore(key, c)
	if loaded {
		if existing, ok := actual.(*clientLimiter); ok {
			existing.lastSeen.Store(now.UnixNano())
			return existing.limiter
		}
	}
	return c.limiter
}

// prune drops clients idle for longer than IdleTTL, at most once per IdleTTL.
func (l *rateLimiter) prune(now time.Time) {
	ttl := l.cfg.IdleTTL
	if ttl <= 0 {
		return
	}
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(ttl) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	cutoff := now.Add(-ttl).UnixNano()
	l.limiters.Range(func(key, value any) bool {
		if c, ok := value.(*clientLimiter); ok && c.lastSeen.Load() < cutoff {
			l.limiters.Delete(key)
		}
		return true
	})
}

// clientKey is the peer address. X-Forwarded-For is read only when the peer is a
// trusted proxy, and then the right-most untrusted hop wins.
func (l *rateLimiter) clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	if !l.isTrusted(host) {
		return host
	}

	hops := strings.Split(r.Header.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" || net.ParseIP(hop) == nil {
			continue
		}
		if !l.isTrusted(hop) {
			return hop
		}
	}
	return host
}

func (l *rateLimiter) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, network := range l.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
