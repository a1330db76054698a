package server

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrRequestTimeout is the cancellation cause of requests that outlive the
// request timeout.
var ErrRequestTimeout = errors.New("request timeout exceeded")

// TimeoutMiddleware bounds every request context by timeout; zero or less
// disables it. Handlers stop cooperatively: a run in flight sees the
// cancelled context in its pending model calls and still answers.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeoutCause(r.Context(), timeout, ErrRequestTimeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
