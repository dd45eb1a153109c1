package trust

import "strings"

// Platform role catalog. Roles are stored and compared in their canonical
// form: upper case, without the legacy "ROLE_" authority prefix.
const (
	RoleAdmin    = "ADMIN"
	RoleStaff    = "STAFF"
	RoleWriter   = "WRITER"
	RoleReader   = "READER"
	RoleCustomer = "CUSTOMER"
	RoleGuest    = "GUEST"

	// RoleService and RoleInternal are granted to callers authenticated
	// via a shared service key; no user token ever carries them.
	RoleService  = "SERVICE"
	RoleInternal = "INTERNAL"
)

// legacyRolePrefix is the authority prefix used by older clients and
// tokens. It is accepted on input and stripped during normalization.
const legacyRolePrefix = "ROLE_"

// NormalizeRole converts a role name to its canonical form: surrounding
// whitespace trimmed, legacy ROLE_ prefix stripped, upper case. An empty
// or whitespace-only input normalizes to "".
func NormalizeRole(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	role = strings.TrimPrefix(role, legacyRolePrefix)
	return role
}

// NormalizeRoles normalizes every role in the slice, dropping empties and
// duplicates while preserving first-seen order. The input slice is not
// modified. A nil input yields an empty, non-nil slice so callers can
// range and join without nil checks.
func NormalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	seen := make(map[string]struct{}, len(roles))

	for _, role := range roles {
		normalized := NormalizeRole(role)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}

	return out
}

// ParseRoleList splits a delimited role header value and normalizes the
// result. Used when reading the X-User-Roles header.
func ParseRoleList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return []string{}
	}
	return NormalizeRoles(strings.Split(value, RoleDelimiter))
}

// JoinRoles renders a role set as a delimited header value.
func JoinRoles(roles []string) string {
	return strings.Join(NormalizeRoles(roles), RoleDelimiter)
}
