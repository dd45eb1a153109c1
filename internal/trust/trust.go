// Package trust defines the resolved caller identity shared by the edge
// gateway and the downstream services: the Principal, the request-scoped
// trust Context, and the role normalization rules applied when either is
// constructed.
package trust

// Level indicates how much the platform trusts a resolved identity.
type Level string

// Trust levels.
const (
	// LevelUser is an end user authenticated via a gateway-verified token.
	LevelUser Level = "USER"

	// LevelService is an internal service authenticated via a shared key.
	LevelService Level = "SERVICE"

	// LevelAnonymous is an unauthenticated caller.
	LevelAnonymous Level = "ANONYMOUS"
)

// Source records which acceptance path established a trust Context.
type Source string

// Trust sources.
const (
	// SourceGatewayJWT means the edge gateway verified a bearer token.
	SourceGatewayJWT Source = "GATEWAY_JWT"

	// SourceServiceKey means a service presented a valid shared key.
	SourceServiceKey Source = "SERVICE_KEY"

	// SourceGatewayHeaders means a service trusted the identity headers
	// injected by the edge gateway.
	SourceGatewayHeaders Source = "GATEWAY_HEADERS"

	// SourceNone means no acceptance path produced an identity.
	SourceNone Source = "NONE"
)

// Principal is the resolved identity of one request's caller.
// It is created only by the edge auth middleware or the service trust
// middleware, lives for exactly one request, and is never persisted.
type Principal struct {
	// ID is the stable identifier of the caller (user id or service name).
	ID string

	// DisplayName is the human-readable name (email for users).
	DisplayName string

	// Roles is the normalized role set. See NormalizeRoles.
	Roles []string

	// Level is the trust level of the caller.
	Level Level
}

// Context wraps a Principal with the provenance of how it was established.
// Exactly one Context exists per request and it is immutable once built;
// it must be threaded through the call chain explicitly and never stored
// in process-wide state.
type Context struct {
	Principal Principal
	Source    Source
}

// NewUserContext builds a trust Context for an end user. Roles are
// normalized once here; callers must not re-normalize at comparison sites.
func NewUserContext(id, displayName string, roles []string, source Source) Context {
	return Context{
		Principal: Principal{
			ID:          id,
			DisplayName: displayName,
			Roles:       NormalizeRoles(roles),
			Level:       LevelUser,
		},
		Source: source,
	}
}

// NewServiceContext builds a trust Context for an authenticated internal
// service. The role set is fixed: SERVICE and INTERNAL.
func NewServiceContext(serviceName string) Context {
	if serviceName == "" {
		serviceName = "internal-service"
	}
	return Context{
		Principal: Principal{
			ID:          serviceName,
			DisplayName: serviceName,
			Roles:       []string{RoleService, RoleInternal},
			Level:       LevelService,
		},
		Source: SourceServiceKey,
	}
}

// Anonymous returns the trust Context for an unauthenticated caller.
func Anonymous() Context {
	return Context{
		Principal: Principal{
			Roles: []string{},
			Level: LevelAnonymous,
		},
		Source: SourceNone,
	}
}

// IsAnonymous reports whether the Context carries no authenticated identity.
func (c Context) IsAnonymous() bool {
	return c.Principal.Level == LevelAnonymous || c.Principal.Level == ""
}

// HasRole reports whether the Principal holds the given role. The argument
// is normalized before comparison, so "admin", "ADMIN" and "ROLE_ADMIN"
// are equivalent.
func (c Context) HasRole(role string) bool {
	want := NormalizeRole(role)
	if want == "" {
		return false
	}
	for _, r := range c.Principal.Roles {
		if r == want {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the Principal holds at least one of the roles.
func (c Context) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}
