package server

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL  = 10 * time.Minute
	limiterPruneLen = 1024
)

// acceptLimiter rate-limits new sessions per remote host. A nil
// *acceptLimiter allows everything.
type acceptLimiter struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	hosts map[string]*hostLimiter
}

type hostLimiter struct {
	lim  *rate.Limiter
	last time.Time
}

func newAcceptLimiter(perSec float64, burst int) *acceptLimiter {
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = int(perSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &acceptLimiter{
		limit: rate.Limit(perSec),
		burst: burst,
		hosts: make(map[string]*hostLimiter),
	}
}

// Allow reports whether a session from addr may start now.
func (a *acceptLimiter) Allow(addr net.Addr) bool {
	if a == nil {
		return true
	}
	now := time.Now()
	host := hostOf(addr)

	a.mu.Lock()
	defer a.mu.Unlock()

	h, ok := a.hosts[host]
	if !ok {
		if len(a.hosts) >= limiterPruneLen {
			a.prune(now)
		}
		h = &hostLimiter{lim: rate.NewLimiter(a.limit, a.burst)}
		a.hosts[host] = h
	}
	h.last = now
	return h.lim.AllowN(now, 1)
}

// prune drops hosts not seen for limiterIdleTTL. Callers hold a.mu.
func (a *acceptLimiter) prune(now time.Time) {
	for host, h := range a.hosts {
		if now.Sub(h.last) > limiterIdleTTL {
			delete(a.hosts, host)
		}
	}
}

func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	s := addr.String()
	if host, _, err := net.SplitHostPort(s); err == nil {
		return host
	}
	return s
}
