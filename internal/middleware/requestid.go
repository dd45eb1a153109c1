// Package middleware provides the HTTP middleware used by the edge gateway.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/perfect8/shopgw/internal/observability"
)

// RequestIDHeader is the header name for request ID.
const RequestIDHeader = "X-Request-ID"

// RequestID returns a middleware that adds a request ID to each request.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := observability.ContextWithRequestID(r.Context(), requestID)
			r = r.WithContext(ctx)

			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r)
		})
	}
}
