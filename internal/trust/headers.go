package trust

// HTTP header names that make up the trust-propagation contract between
// the edge gateway and the downstream services.
const (
	// HeaderAuthorization carries the end-user bearer credential from the
	// client to the edge.
	HeaderAuthorization = "Authorization"

	// HeaderAuthUser, HeaderUserID and HeaderUserRoles carry the verified
	// identity from the edge to downstream services. The edge gateway is
	// the only writer of these headers reachable from outside the trust
	// boundary; it strips inbound copies before forwarding.
	HeaderAuthUser  = "X-Auth-User"
	HeaderUserID    = "X-User-Id"
	HeaderUserRoles = "X-User-Roles"

	// HeaderAPIKey and HeaderServiceName carry the shared-secret
	// credential for direct service-to-service calls.
	HeaderAPIKey      = "X-Api-Key"
	HeaderServiceName = "X-Service-Name"
)

// AuthSchemeBearer is the expected Authorization scheme prefix.
const AuthSchemeBearer = "Bearer "

// RoleDelimiter separates roles in the X-User-Roles header value.
const RoleDelimiter = ","

// IdentityHeaders lists the headers only the edge may set. The gateway
// removes these from every inbound request before its own auth decision.
func IdentityHeaders() []string {
	return []string{HeaderAuthUser, HeaderUserID, HeaderUserRoles}
}
