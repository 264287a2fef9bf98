package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// visitorTTL is how long an idle client's bucket is kept before eviction.
const visitorTTL = 10 * time.Minute

// RateLimiter is a token-bucket limiter keyed by client IP. The booking
// widget polls availability, so limits are generous; the 429 path exists to
// shed scripted traffic, not to meter real clients.
type RateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	rate      float64 // tokens per second
	burst     float64
	lastSweep time.Time
}

type visitor struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter creates a limiter allowing rate requests/sec with the given
// burst allowance per client.
func NewRateLimiter(rate float64, burst int) *RateLimiter {
	return &RateLimiter{
		visitors:  make(map[string]*visitor),
		rate:      rate,
		burst:     float64(burst),
		lastSweep: time.Now(),
	}
}

// Allow refills the caller's bucket for the elapsed time and spends one
// token.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweep(now)

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{tokens: rl.burst}
		rl.visitors[ip] = v
	} else {
		v.tokens += now.Sub(v.seen).Seconds() * rl.rate
		if v.tokens > rl.burst {
			v.tokens = rl.burst
		}
	}
	v.seen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep evicts visitors idle past the TTL. It runs inline under the lock, at
// most once per minute, so the limiter needs no background goroutine.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < time.Minute {
		return
	}
	rl.lastSweep = now
	for ip, v := range rl.visitors {
		if now.Sub(v.seen) > visitorTTL {
			delete(rl.visitors, ip)
		}
	}
}

// RateLimit rejects clients exceeding the configured rate with
// 429 Too Many Requests.
func RateLimit(rate float64, burst int) func(http.Handler) http.Handler {
	limiter := NewRateLimiter(rate, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers the address resolved by chi's RealIP middleware, falling
// back to the connection's remote host.
func clientIP(r *http.Request) string {
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
