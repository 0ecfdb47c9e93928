package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/better-wallet/dapp-broker/internal/origin"
	apperrors "github.com/better-wallet/dapp-broker/pkg/errors"
	"golang.org/x/time/rate"
)

// PageURLHeader names the page a request was sent from
const PageURLHeader = "X-Page-URL"

const (
	visitorSweepInterval = time.Minute
	visitorIdleTTL       = 3 * time.Minute
)

// RateLimiter limits requests per page origin for the authenticated
// relay and per client IP for everyone else.
type RateLimiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
	enabled  bool
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a RateLimiter. A non-positive rps disables it.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
		enabled:  rps > 0,
		now:      time.Now,
	}
}

// Run evicts idle visitors until ctx is done
func (rl *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(visitorSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	cutoff := rl.now().Add(-visitorIdleTTL)
	for key, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, key)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[key] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

// visitorKey is the page origin reported by an authenticated relay,
// otherwise the client IP. An unauthenticated caller cannot pick its own
// bucket through the page header.
func visitorKey(r *http.Request) string {
	if Caller(r.Context()) == CallerRelay {
		if o, err := origin.Resolve(r.Header.Get(PageURLHeader)); err == nil {
			return o
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// Limit is the middleware that enforces rate limiting
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.enabled {
			next.ServeHTTP(w, r)
			return
		}

		if !rl.getVisitor(visitorKey(r)).Allow() {
			appErr := apperrors.New(apperrors.ErrCodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(appErr.StatusCode)
			_ = json.NewEncoder(w).Encode(appErr)
			return
		}

		next.ServeHTTP(w, r)
	})
}
