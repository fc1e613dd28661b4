// Package requesttime pins a single "now" per request so every expiry check
// and timestamp written while serving it agrees.
package requesttime

import (
	"net/http"
	"time"

	"cardgate/pkg/requestcontext"
)

// Middleware captures the current UTC time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
