package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// visitorTTL is how long an idle client's limiter is kept.
	visitorTTL = 5 * time.Minute
	// sweepInterval bounds how often idle limiters are pruned.
	sweepInterval = time.Minute
)

type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	limit      RateLimit
	trustProxy bool

	mu        sync.Mutex
	visitors  map[string]*rateEntry
	lastSweep time.Time
	clockNow  func() time.Time
}

// NewRateLimiter returns a limiter; a non-positive RequestsPerMinute
// disables it. Forwarding headers are only honoured when trustProxy is set.
func NewRateLimiter(limit RateLimit, trustProxy bool) *RateLimiter {
	return &RateLimiter{
		limit:      limit,
		trustProxy: trustProxy,
		visitors:   make(map[string]*rateEntry),
		clockNow:   time.Now,
	}
}

// Middleware rejects requests over the limit through reject.
func (r *RateLimiter) Middleware(reject func(http.ResponseWriter, *http.Request, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if r == nil || r.limit.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, req)
				return
			}
			identifier := r.clientID(req)
			if !r.Allow(identifier) {
				reject(w, req, identifier)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// Allow reports whether the client may proceed now.
func (r *RateLimiter) Allow(id string) bool {
	return r.obtainLimiter(id).AllowN(r.clockNow(), 1)
}

func (r *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clockNow()
	if now.Sub(r.lastSweep) >= sweepInterval {
		r.sweep(now)
	}
	if entry, ok := r.visitors[id]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	perSecond := r.limit.RequestsPerMinute / 60.0
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := r.limit.Burst
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	r.visitors[id] = &rateEntry{limiter: limiter, lastSeen: now}
	return limiter
}

// sweep drops limiters idle for longer than visitorTTL. Callers hold mu.
func (r *RateLimiter) sweep(now time.Time) {
	for key, entry := range r.visitors {
		if now.Sub(entry.lastSeen) > visitorTTL {
			delete(r.visitors, key)
		}
	}
	r.lastSweep = now
}

func (r *RateLimiter) clientID(req *http.Request) string {
	if r.trustProxy {
		if ip := strings.TrimSpace(req.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
		if forwarded := req.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if parsed := net.ParseIP(strings.TrimSpace(first)); parsed != nil {
				return parsed.String()
			}
		}
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}
