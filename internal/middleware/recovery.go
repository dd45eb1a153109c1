package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/perfect8/shopgw/internal/observability"
)

// Recovery returns a middleware that recovers from panics.
func Recovery(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						observability.String("path", r.URL.Path),
						observability.String("method", r.Method),
						observability.Any("error", err),
						observability.String("stack", string(debug.Stack())),
					)

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = io.WriteString(w, `{"error":"internal server error"}`)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
