package httpx

import (
	"net/http"
	"time"
)

type Middleware func(http.Handler) http.Handler

func Chain(h http.Handler, m ...Middleware) http.Handler {
	// Apply in reverse so Chain(h, a, b) becomes a(b(h)).
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// WithBodyLimit caps request bodies. Booking and directory payloads are small
// JSON documents, so the cap only needs to guard against runaway uploads;
// bodiless lookups pass through untouched.
func WithBodyLimit(limitBytes int64) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				r.Body = http.MaxBytesReader(w, r.Body, limitBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithTimeout cuts off slow handlers with the same JSON error shape the
// API handlers emit.
func WithTimeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}
