// Package service implements the downstream side of the trust contract:
// the middleware that turns service keys or gateway-injected identity
// headers into a trust context, the role authorizer guarding business
// endpoints, and the HTTP server the shop services run on.
package service

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/perfect8/shopgw/internal/middleware"
	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/servicekey"
	"github.com/perfect8/shopgw/internal/trust"
)

// Trust resolves the caller identity for every request that is not on
// the local bypass list. Two acceptance paths, in fixed order: a shared
// service key, then the identity headers injected by the edge gateway.
// When neither applies the request proceeds as anonymous; rejecting
// anonymous callers is the authorizer's job, not this middleware's.
type Trust struct {
	registry servicekey.Registry
	bypass   *routes.Classifier
	logger   observability.Logger
	metrics  *Metrics
}

// TrustOption is a functional option for the trust middleware.
type TrustOption func(*Trust)

// WithTrustLogger sets the logger for the middleware.
func WithTrustLogger(logger observability.Logger) TrustOption {
	return func(t *Trust) {
		t.logger = logger
	}
}

// WithTrustMetrics sets the metrics for the middleware.
func WithTrustMetrics(metrics *Metrics) TrustOption {
	return func(t *Trust) {
		t.metrics = metrics
	}
}

// WithBypass sets the locally evaluated public-route list. The service
// classifies these itself instead of relying on the edge having done so.
func WithBypass(bypass *routes.Classifier) TrustOption {
	return func(t *Trust) {
		t.bypass = bypass
	}
}

// NewTrust creates the trust middleware. A nil registry disables the
// service-key path; any presented key is then invalid.
func NewTrust(registry servicekey.Registry, opts ...TrustOption) *Trust {
	t := &Trust{
		registry: registry,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Middleware returns the gin middleware.
func (t *Trust) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if t.bypass != nil && t.bypass.IsPublic(c.Request.Method, c.Request.URL.Path) {
			c.Next()
			return
		}

		tc, err := t.resolve(c.Request)
		if err != nil {
			t.logger.WithContext(c.Request.Context()).Warn("service key rejected",
				observability.String("caller", c.GetHeader(trust.HeaderServiceName)),
				observability.String("path", c.Request.URL.Path),
			)
			t.record("rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service key"})
			return
		}

		t.record(string(tc.Source))
		c.Request = c.Request.WithContext(trust.ContextWith(c.Request.Context(), tc))
		c.Next()
	}
}

// resolve applies the acceptance paths in order. The error return is
// non-nil only for a presented-but-invalid service key; every other
// outcome is a valid trust context, possibly anonymous.
func (t *Trust) resolve(r *http.Request) (trust.Context, error) {
	key := r.Header.Get(trust.HeaderAPIKey)
	name := r.Header.Get(trust.HeaderServiceName)

	// A caller presenting a service credential is held to it; the key
	// path never falls through to the weaker header path.
	if key != "" && name != "" {
		if t.registry == nil {
			return trust.Context{}, servicekey.ErrInvalidServiceKey
		}
		if err := t.registry.Validate(name, key); err != nil {
			return trust.Context{}, err
		}
		return trust.NewServiceContext(name), nil
	}

	if key == "" {
		user := r.Header.Get(trust.HeaderAuthUser)
		id := r.Header.Get(trust.HeaderUserID)
		roleList := r.Header.Get(trust.HeaderUserRoles)

		// The edge writes all three headers together; a partial set did
		// not come from the edge and resolves anonymous.
		if user != "" && id != "" && roleList != "" {
			return trust.NewUserContext(
				id,
				user,
				trust.ParseRoleList(roleList),
				trust.SourceGatewayHeaders,
			), nil
		}
	}

	return trust.Anonymous(), nil
}

func (t *Trust) record(source string) {
	if t.metrics != nil {
		t.metrics.RecordTrustResolution(source)
	}
}

// RequestLogger logs one structured line per handled request and feeds
// the request counters. Metrics may be nil.
func RequestLogger(logger observability.Logger, metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)

		if metrics != nil {
			// The route template keeps label cardinality bounded; raw
			// paths only appear for unmatched routes.
			route := c.FullPath()
			if route == "" {
				route = path
			}
			metrics.RecordRequest(c.Request.Method, route, c.Writer.Status(), duration)
		}

		logger.WithContext(c.Request.Context()).Info("request handled",
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", c.Writer.Status()),
			observability.Int("size", c.Writer.Size()),
			observability.Duration("duration", duration),
		)
	}
}

// RequestID ensures every request has an id, honoring one supplied by
// the edge gateway.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(middleware.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID))
		c.Writer.Header().Set(middleware.RequestIDHeader, requestID)

		c.Next()
	}
}

// Recovery converts panics into 500 responses.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.WithContext(c.Request.Context()).Error("panic recovered",
					observability.Any("panic", rec),
					observability.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					gin.H{"error": "internal server error"})
			}
		}()
		c.Next()
	}
}
