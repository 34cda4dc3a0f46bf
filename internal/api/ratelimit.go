package api

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// authRateLimiter applies a fixed one-minute window per action and client
// IP. Buckets from stale windows are dropped lazily on the next request.
type authRateLimiter struct {
	enabled bool
	limits  map[string]int

	mu      sync.Mutex
	buckets map[string]*rateBucket
}

type rateBucket struct {
	window int64
	count  int
}

func newAuthRateLimiter(cfg RateLimitPolicy) *authRateLimiter {
	return &authRateLimiter{
		enabled: cfg.Enabled,
		limits: map[string]int{
			"read":   cfg.ReadPerMinute,
			"export": cfg.ExportPerMinute,
		},
		buckets: make(map[string]*rateBucket),
	}
}

func (l *authRateLimiter) Allow(r *http.Request, action string) bool {
	if l == nil || !l.enabled {
		return true
	}
	action = strings.TrimSpace(action)
	limit := l.limits[action]
	if limit <= 0 {
		return true
	}
	window := time.Now().UTC().Unix() / 60
	key := action + "|" + requestRemoteIP(r)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if b.window != window {
			delete(l.buckets, k)
		}
	}
	b, ok := l.buckets[key]
	if !ok {
		b = &rateBucket{window: window}
		l.buckets[key] = b
	}
	b.count++
	return b.count <= limit
}
