package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/perfect8/shopgw/internal/config"
	"github.com/perfect8/shopgw/internal/observability"
)

// Circuit breaker defaults applied when the backend enables one without
// tuning it.
const (
	defaultBreakerThreshold = 5
	defaultBreakerTimeout   = 30 * time.Second
	breakerInterval         = 60 * time.Second
)

// errBackendStatus marks a 5xx backend response as a breaker failure.
// The response has already been written when it is returned.
var errBackendStatus = errors.New("backend returned server error")

// Proxy routes requests to downstream backends by path prefix. Each
// backend gets its own reverse proxy, request timeout and optional
// circuit breaker.
type Proxy struct {
	backends []*backendRoute
	logger   observability.Logger
	metrics  *Metrics
}

// backendRoute is one configured backend with its proxy and protection.
type backendRoute struct {
	name    string
	prefix  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	proxy   *httputil.ReverseProxy
}

// ProxyOption is a functional option for the proxy.
type ProxyOption func(*Proxy)

// WithProxyLogger sets the logger for the proxy.
func WithProxyLogger(logger observability.Logger) ProxyOption {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// WithProxyMetrics sets the metrics for the proxy.
func WithProxyMetrics(metrics *Metrics) ProxyOption {
	return func(p *Proxy) {
		p.metrics = metrics
	}
}

// NewProxy creates a proxy for the configured backends.
func NewProxy(backends []config.BackendConfig, opts ...ProxyOption) (*Proxy, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("at least one backend is required")
	}

	p := &Proxy{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(p)
	}

	for _, b := range backends {
		route, err := p.newBackendRoute(b)
		if err != nil {
			return nil, fmt.Errorf("backend %s: %w", b.Name, err)
		}
		p.backends = append(p.backends, route)
	}

	// Longest prefix wins when prefixes nest.
	sort.SliceStable(p.backends, func(i, j int) bool {
		return len(p.backends[i].prefix) > len(p.backends[j].prefix)
	})

	return p, nil
}

// newBackendRoute builds the reverse proxy and breaker for one backend.
func (p *Proxy) newBackendRoute(b config.BackendConfig) (*backendRoute, error) {
	target, err := url.Parse(b.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", b.URL, err)
	}

	logger := p.logger.With(observability.String("backend", b.Name))

	rp := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			forwardedHost := req.Host

			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host

			if req.Header.Get("X-Forwarded-Proto") == "" {
				proto := "http"
				if req.TLS != nil {
					proto = "https"
				}
				req.Header.Set("X-Forwarded-Proto", proto)
			}
			if forwardedHost != "" {
				req.Header.Set("X-Forwarded-Host", forwardedHost)
			}

			observability.InjectTraceContext(req.Context(), req)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			status := http.StatusBadGateway
			message := "bad gateway"
			if errors.Is(err, context.DeadlineExceeded) {
				status = http.StatusGatewayTimeout
				message = "gateway timeout"
			}

			logger.WithContext(r.Context()).Error("backend request failed",
				observability.String("method", r.Method),
				observability.String("path", r.URL.Path),
				observability.Error(err),
			)
			writeJSONError(w, status, message)
		},
	}

	route := &backendRoute{
		name:    b.Name,
		prefix:  b.Prefix,
		timeout: b.EffectiveTimeout(),
		proxy:   rp,
	}

	if cb := b.CircuitBreaker; cb != nil && cb.Enabled {
		route.breaker = newBreaker(b.Name, cb, logger)
	}

	return route, nil
}

// newBreaker builds a gobreaker for one backend.
func newBreaker(name string, cfg *config.CircuitBreakerConfig, logger observability.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultBreakerThreshold
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     name,
		Interval: breakerInterval,
		Timeout:  timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= uint32(threshold) && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
}

// ServeHTTP routes the request to the matching backend.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := p.match(r.URL.Path)
	if route == nil {
		p.logger.WithContext(r.Context()).Warn("no backend for path",
			observability.String("method", r.Method),
			observability.String("path", r.URL.Path),
		)
		writeJSONError(w, http.StatusNotFound, "route not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), route.timeout)
	defer cancel()
	r = r.WithContext(ctx)

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	start := time.Now()

	if route.breaker != nil {
		_, err := route.breaker.Execute(func() (interface{}, error) {
			route.proxy.ServeHTTP(rec, r)
			if rec.status >= http.StatusInternalServerError {
				return nil, errBackendStatus
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			if p.metrics != nil {
				p.metrics.RecordBreakerRejection(route.name)
			}
			writeJSONError(w, http.StatusServiceUnavailable, "service unavailable")
			return
		}
	} else {
		route.proxy.ServeHTTP(rec, r)
	}

	if p.metrics != nil {
		p.metrics.RecordProxyRequest(route.name, r.Method, rec.status, time.Since(start))
	}
}

// match returns the backend for the path, longest prefix first.
func (p *Proxy) match(path string) *backendRoute {
	for _, route := range p.backends {
		if strings.HasPrefix(path, route.prefix) {
			return route
		}
	}
	return nil
}

// statusRecorder captures the status code written by the reverse proxy.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
