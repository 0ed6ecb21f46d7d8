package listener

import (
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// connVisitor tracks one remote IP's admission-control bucket, retargeted
// from the teacher's per-HTTP-request visitor tracking to per-new-TCP-
// connection admission: Allow is called once per Accept, not once per
// request.
type connVisitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// connRateLimiter bounds how many new sessions a single remote IP may open
// per window. It does not touch a session once it has been admitted.
type connRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*connVisitor
	limit    rate.Limit
	burst    int
	window   time.Duration
}

// newConnRateLimiter builds a limiter allowing maxConns new connections per
// window, per remote IP, with a burst equal to maxConns.
func newConnRateLimiter(maxConns int, window time.Duration) *connRateLimiter {
	if maxConns <= 0 {
		panic("maxConns must be positive")
	}
	rl := &connRateLimiter{
		visitors: make(map[string]*connVisitor),
		limit:    rate.Limit(float64(maxConns) / window.Seconds()),
		burst:    maxConns,
		window:   window,
	}
	go rl.cleanupVisitors()
	return rl
}

// allow reports whether a new connection from remoteAddr may be admitted.
func (rl *connRateLimiter) allow(remoteAddr string) bool {
	return rl.getLimiter(clientIP(remoteAddr)).Allow()
}

func (rl *connRateLimiter) getLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, exists := rl.visitors[ip]; exists {
		v.lastSeen = time.Now()
		return v.limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.visitors[ip] = &connVisitor{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

func (rl *connRateLimiter) cleanupVisitors() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-rl.window)

		rl.mu.Lock()
		for ip, v := range rl.visitors {
			if v.lastSeen.Before(cutoff) {
				delete(rl.visitors, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return strings.TrimSpace(host)
}
