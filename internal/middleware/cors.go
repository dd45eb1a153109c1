package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds the browser cross-origin policy served by the edge.
type CORSConfig struct {
	AllowOrigins     []string `yaml:"allowOrigins"`
	AllowMethods     []string `yaml:"allowMethods"`
	AllowHeaders     []string `yaml:"allowHeaders"`
	ExposeHeaders    []string `yaml:"exposeHeaders"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// DefaultCORSConfig returns the permissive development policy.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", RequestIDHeader},
		MaxAge:       86400,
	}
}

// CORS returns a middleware that applies the policy and answers
// preflight requests. Origins may be exact, "*", or a "*.example.com"
// subdomain wildcard.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	if len(cfg.AllowOrigins) == 0 {
		cfg = DefaultCORSConfig()
	}

	allowMethods := strings.Join(cfg.AllowMethods, ", ")
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	exposeHeaders := strings.Join(cfg.ExposeHeaders, ", ")
	maxAge := strconv.Itoa(cfg.MaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if originAllowed(cfg.AllowOrigins, origin) {
				// Echo the specific origin; "*" is incompatible with
				// credentialed requests.
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")

				if allowMethods != "" {
					w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				}
				if allowHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				}
				if exposeHeaders != "" {
					w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
				}
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// originAllowed checks an Origin value against the configured list.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	for _, entry := range allowed {
		switch {
		case entry == "*":
			return true
		case strings.HasPrefix(entry, "*."):
			suffix := entry[1:]
			if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
				return true
			}
		case entry == origin:
			return true
		}
	}

	return false
}
