package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients map[string]*limiterEntry
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &clientLimiter{limit: limit, burst: burst, clients: map[string]*limiterEntry{}, now: time.Now}
}

// Allow reports whether client may make another request now.
func (l *clientLimiter) Allow(client string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.clients[client]
	if !ok {
		l.prune(now)
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (l *clientLimiter) prune(now time.Time) {
	for k, e := range l.clients {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(l.clients, k)
		}
	}
}

// RateLimit throttles per user, or per remote address for anonymous calls.
func (h *APIHandler) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client := h.currentUser(r)
		if client == "" {
			client = remoteHost(r)
		}
		if !h.limiter.Allow(client) {
			w.Header().Set("Retry-After", "1")
			writeErrorBody(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many searches. Slow down a little.")
			return
		}
		next(w, r)
	}
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
