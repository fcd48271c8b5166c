package middleware

import (
	"net/http"
	"strconv"

	apiContext "beacon/internal/api/context"
	"beacon/internal/pkg/errors"
	"beacon/internal/platform/auth"
	"beacon/internal/platform/security"
)

// RateLimit fronts the security gate's CheckRateLimit with the caller
// identity as the key, falling back to the remote address for anonymous
// endpoints like the inbound receiver.
func RateLimit(gate *security.Gate, endpoint string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
				key = claims.IdentityID
			}

			decision := gate.CheckRateLimit(key, endpoint)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				w.Header().Set("Retry-After", "60")
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}

			next(w, r)
		}
	}
}
