package service

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/trust"
)

// Authorizer guards business endpoints with role checks against the
// resolved trust context. Identity failures were already answered with
// 401 by the resolving middleware; everything here, anonymous callers
// included, is 403 territory. Callers use the 401/403 split to decide
// whether re-authenticating can help.
type Authorizer struct {
	logger  observability.Logger
	metrics *Metrics
}

// AuthorizerOption is a functional option for the authorizer.
type AuthorizerOption func(*Authorizer)

// WithAuthorizerLogger sets the logger for the authorizer.
func WithAuthorizerLogger(logger observability.Logger) AuthorizerOption {
	return func(a *Authorizer) {
		a.logger = logger
	}
}

// WithAuthorizerMetrics sets the metrics for the authorizer.
func WithAuthorizerMetrics(metrics *Metrics) AuthorizerOption {
	return func(a *Authorizer) {
		a.metrics = metrics
	}
}

// NewAuthorizer creates an authorizer.
func NewAuthorizer(opts ...AuthorizerOption) *Authorizer {
	a := &Authorizer{
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// RequireRole returns a middleware that rejects requests whose trust
// context lacks the role with 403. An anonymous caller lacks every
// role, so it is rejected the same way.
func (a *Authorizer) RequireRole(role string) gin.HandlerFunc {
	return a.RequireAnyRole(role)
}

// RequireAnyRole returns a middleware that passes when the trust context
// holds at least one of the roles.
func (a *Authorizer) RequireAnyRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := trust.FromContext(c.Request.Context())
		if !ok || tc.IsAnonymous() {
			a.deny(c, tc, roles, "unauthenticated")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		if !tc.HasAnyRole(roles...) {
			a.deny(c, tc, roles, "missing_role")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}

// RequireAuthenticated returns a middleware that only rejects anonymous
// callers; any authenticated identity passes.
func (a *Authorizer) RequireAuthenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc, ok := trust.FromContext(c.Request.Context())
		if !ok || tc.IsAnonymous() {
			a.deny(c, tc, nil, "unauthenticated")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}

// deny records and logs one authorization denial.
func (a *Authorizer) deny(c *gin.Context, tc trust.Context, roles []string, reason string) {
	if a.metrics != nil {
		a.metrics.RecordAuthzDenial(reason)
	}

	a.logger.WithContext(c.Request.Context()).Warn("authorization denied",
		observability.String("reason", reason),
		observability.String("caller", tc.Principal.ID),
		observability.Strings("required_roles", roles),
		observability.String("method", c.Request.Method),
		observability.String("path", c.Request.URL.Path),
	)
}
