package desk

import (
	"math"
	"net/http"

	"golang.org/x/time/rate"
)

// newLimiter returns a limiter allowing rps requests per second, or nil when
// rps is not positive.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), int(math.Max(1, math.Ceil(rps))))
}

// rateLimited answers 429 once limiter runs dry. A nil limiter passes every
// request through.
func rateLimited(limiter *rate.Limiter, next http.HandlerFunc) http.Handler {
	if limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next(w, r)
	})
}
