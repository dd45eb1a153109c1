// Package gateway implements the platform's edge: the auth middleware
// that turns a bearer credential into trusted identity headers, and the
// reverse proxy that forwards requests to the downstream services.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/perfect8/shopgw/internal/observability"
	"github.com/perfect8/shopgw/internal/routes"
	"github.com/perfect8/shopgw/internal/token"
	"github.com/perfect8/shopgw/internal/trust"
)

// Auth decision labels recorded in logs and metrics.
const (
	decisionPublic    = "public"
	decisionForwarded = "forwarded"
	decisionRejected  = "rejected"
)

// EdgeAuth is the edge authentication middleware. For every request it
// strips any inbound identity headers, classifies the route, and on
// protected routes verifies the bearer token and injects the trusted
// identity headers. It is the only writer of those headers reachable
// from outside the trust boundary.
type EdgeAuth struct {
	codec      token.Codec
	classifier *routes.Classifier
	logger     observability.Logger
	metrics    *Metrics
}

// EdgeAuthOption is a functional option for the middleware.
type EdgeAuthOption func(*EdgeAuth)

// WithEdgeAuthLogger sets the logger for the middleware.
func WithEdgeAuthLogger(logger observability.Logger) EdgeAuthOption {
	return func(a *EdgeAuth) {
		a.logger = logger
	}
}

// WithEdgeAuthMetrics sets the metrics for the middleware.
func WithEdgeAuthMetrics(metrics *Metrics) EdgeAuthOption {
	return func(a *EdgeAuth) {
		a.metrics = metrics
	}
}

// NewEdgeAuth creates the edge authentication middleware.
func NewEdgeAuth(codec token.Codec, classifier *routes.Classifier, opts ...EdgeAuthOption) (*EdgeAuth, error) {
	if codec == nil {
		return nil, fmt.Errorf("codec is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}

	a := &EdgeAuth{
		codec:      codec,
		classifier: classifier,
		logger:     observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// Middleware returns the http.Handler middleware.
func (a *EdgeAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Identity headers arriving from outside the trust boundary
			// are forgeries. Remove them before any decision is made.
			for _, h := range trust.IdentityHeaders() {
				r.Header.Del(h)
			}

			if a.classifier.IsPublic(r.Method, r.URL.Path) {
				a.record(decisionPublic, "", start)
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := bearerToken(r)
			if !ok {
				a.reject(w, r, "missing_credential", "missing credential", start)
				return
			}

			claims, err := a.codec.Verify(raw)
			if err != nil {
				reason, message := rejectionFor(err)
				a.reject(w, r, reason, message, start)
				return
			}

			tc := trust.NewUserContext(
				strconv.FormatInt(claims.UserID, 10),
				claims.Subject,
				claims.Roles,
				trust.SourceGatewayJWT,
			)

			r.Header.Set(trust.HeaderAuthUser, claims.Subject)
			r.Header.Set(trust.HeaderUserID, strconv.FormatInt(claims.UserID, 10))
			r.Header.Set(trust.HeaderUserRoles, trust.JoinRoles(tc.Principal.Roles))

			// The bearer credential does not travel past the edge.
			r.Header.Del(trust.HeaderAuthorization)

			a.logger.WithContext(r.Context()).Info("request authenticated",
				observability.String("subject", claims.Subject),
				observability.Int64("user_id", claims.UserID),
				observability.Strings("roles", tc.Principal.Roles),
				observability.String("path", r.URL.Path),
			)
			a.record(decisionForwarded, "", start)

			next.ServeHTTP(w, r.WithContext(trust.ContextWith(r.Context(), tc)))
		})
	}
}

// reject writes a 401 response and records the decision.
func (a *EdgeAuth) reject(w http.ResponseWriter, r *http.Request, reason, message string, start time.Time) {
	a.logger.WithContext(r.Context()).Warn("request rejected",
		observability.String("reason", reason),
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
	)
	a.record(decisionRejected, reason, start)
	writeJSONError(w, http.StatusUnauthorized, message)
}

func (a *EdgeAuth) record(decision, reason string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordAuthDecision(decision, reason, time.Since(start))
	}
}

// rejectionFor maps a verification error to a metric reason and the
// client-facing message. The message names the failure class but never
// echoes token contents.
func rejectionFor(err error) (reason, message string) {
	switch {
	case errors.Is(err, token.ErrTokenExpired):
		return "expired", "token expired"
	case errors.Is(err, token.ErrInvalidSignature):
		return "invalid_signature", "invalid token signature"
	default:
		return "malformed", "malformed token"
	}
}

// bearerToken extracts the bearer credential from the Authorization
// header. A missing header, a non-Bearer scheme or an empty credential
// all report false.
func bearerToken(r *http.Request) (string, bool) {
	value := r.Header.Get(trust.HeaderAuthorization)
	if len(value) <= len(trust.AuthSchemeBearer) {
		return "", false
	}
	if !strings.EqualFold(value[:len(trust.AuthSchemeBearer)], trust.AuthSchemeBearer) {
		return "", false
	}

	raw := strings.TrimSpace(value[len(trust.AuthSchemeBearer):])
	if raw == "" {
		return "", false
	}

	return raw, true
}
