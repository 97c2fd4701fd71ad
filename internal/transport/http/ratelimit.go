package http

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"
)

// GatewayLimiter keeps one token bucket per gateway so a flood of deliveries for
// one provider cannot starve the others.
type GatewayLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewGatewayLimiter(perSecond float64, burst int) *GatewayLimiter {
	return &GatewayLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

func (l *GatewayLimiter) Allow(gatewayID string) bool {
	l.mu.Lock()
	lim, ok := l.limiters[gatewayID]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[gatewayID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware throttles by the {gateway} route parameter.
func (l *GatewayLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(chi.URLParam(r, "gateway")) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, codeRateLimited, "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
