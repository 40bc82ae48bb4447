package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	apperrors "github.com/property-scanner/internal/errors"
)

// RateLimiter keeps one token bucket per principal, sized by role
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	limits map[Role]rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a rate limiter with per-role requests per second
func NewRateLimiter(adminRPS, userRPS, viewerRPS int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limits: map[Role]rate.Limit{
			RoleAdmin:  rate.Limit(adminRPS),
			RoleUser:   rate.Limit(userRPS),
			RoleViewer: rate.Limit(viewerRPS),
		},
		burstSize: 10,
	}
}

// getLimiter returns the limiter for a principal, creating it on first use
func (rl *RateLimiter) getLimiter(p *Principal) *rate.Limiter {
	key := string(p.Role) + ":" + p.UserID

	rl.mu.RLock()
	limiter, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	limit, ok := rl.limits[p.Role]
	if !ok {
		limit = rl.limits[RoleViewer]
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[key]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[key] = limiter

	return limiter
}

// RateLimitMiddleware enforces the caller's rate. It must run after AuthMiddleware.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !rl.getLimiter(p).Allow() {
				respondError(w, r, apperrors.NewRateLimitError(string(p.Role)))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
