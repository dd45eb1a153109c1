package token

import "errors"

// Sentinel errors returned by the codec. Middleware dispatches on these
// with errors.Is to pick the response message; all of them map to HTTP 401
// at the edge.
var (
	// ErrEmptyToken is returned when an empty string is verified.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenMalformed is returned when the token structure cannot be
	// parsed into three segments with a valid header and payload.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenExpired is returned when the token's exp claim is in the past.
	ErrTokenExpired = errors.New("token has expired")

	// ErrInvalidSignature is returned when the signature does not match
	// the signing input, including algorithm mismatches.
	ErrInvalidSignature = errors.New("token signature is invalid")

	// ErrSecretTooShort is returned by NewCodec when the configured secret
	// is below MinSecretLength. This is a deployment bug; callers must
	// treat it as fatal before accepting traffic.
	ErrSecretTooShort = errors.New("signing secret is shorter than the required minimum length")
)
