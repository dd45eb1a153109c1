package middleware

import (
	"net/http"
	"time"

	"github.com/perfect8/shopgw/internal/observability"
)

// responseWriter wraps http.ResponseWriter to capture status code and size.
type responseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Flush implements http.Flusher for streaming support.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging returns a middleware that logs HTTP requests.
func Logging(logger observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				status:         http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			requestID := observability.RequestIDFromContext(r.Context())

			logger.Info("http request",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Int("status", rw.status),
				observability.Int("size", rw.size),
				observability.Duration("duration", duration),
				observability.String("remote_addr", r.RemoteAddr),
				observability.String("request_id", requestID),
			)
		})
	}
}
