package domain

import "errors"

// Token verification failures. The gate collapses all of them into
// ErrCredentialInvalid before anything reaches the network.
var (
	ErrTokenMalformed    = errors.New("token malformed")
	ErrTokenBadSignature = errors.New("token signature invalid")
	ErrTokenExpired      = errors.New("token expired")
)
