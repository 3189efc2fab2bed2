package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ActorOrIP.
	KeyFunc func(*http.Request) string
}

// window counts requests of one client in the current and previous fixed
// windows. The effective count weights the previous window by its overlap
// with a window sliding back from now.
type window struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max     int
	size    time.Duration
	key     func(*http.Request) string
	mu      sync.Mutex
	clients map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	key := cfg.KeyFunc
	if key == nil {
		key = ActorOrIP
	}
	return &limiter{
		max:     cfg.Max,
		size:    cfg.Window,
		key:     key,
		clients: make(map[string]*window),
	}
}

// take records a request for client at now unless the limit is reached.
func (l *limiter) take(client string, now time.Time) (remaining int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.clients[client]
	if w == nil {
		w = &window{start: now.Truncate(l.size)}
		l.clients[client] = w
	}
	if elapsed := now.Sub(w.start); elapsed >= l.size {
		w.prev = w.curr
		if elapsed >= 2*l.size {
			w.prev = 0
		}
		w.curr = 0
		w.start = now.Truncate(l.size)
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.size.Seconds()
	count := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if count >= float64(l.max) {
		return 0, reset, false
	}

	w.curr++
	return max(0, int(float64(l.max)-count-1)), reset, true
}

// evict drops clients idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for client, w := range l.clients {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.clients, client)
		}
	}
}

func (l *limiter) evictLoop(ctx context.Context) {
	t := time.NewTicker(2 * l.size)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

// RateLimit limits requests per client with a sliding window. Idle clients
// are evicted in the background until ctx is done. Rejected requests get
// 429 with Retry-After; every response carries X-RateLimit-* headers.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.evictLoop(ctx)

	limit := strconv.Itoa(cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.take(l.key(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				wait := max(time.Until(reset), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ActorOrIP keys by the acting user when known, otherwise by client IP
// taken from X-Forwarded-For, X-Real-IP or the remote address.
func ActorOrIP(r *http.Request) string {
	if actor := ActorFromContext(r.Context()); actor != "" {
		return "actor:" + actor
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return "ip:" + strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return "ip:" + ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}
