package token

import "github.com/golang-jwt/jwt/v5"

// Claims is the decoded payload of a platform token. The registered
// claims carry sub (the user's email address), iss, iat, exp and jti;
// userId and roles are the platform's own claims.
type Claims struct {
	// UserID is the numeric user identifier.
	UserID int64 `json:"userId"`

	// Roles is the role set granted to the user. Stored as issued;
	// normalization happens when a trust context is built from them.
	Roles []string `json:"roles"`

	jwt.RegisteredClaims
}
