package domain

import (
	"errors"
	"net/http"
)

// DenialReason classifies why the request gate refused a request.
type DenialReason string

const (
	ReasonCredentialMissing      DenialReason = "credential_missing"
	ReasonCredentialMalformed    DenialReason = "credential_malformed"
	ReasonCredentialInvalid      DenialReason = "credential_invalid"
	ReasonIdentityNotFound       DenialReason = "identity_not_found"
	ReasonInsufficientPermission DenialReason = "insufficient_permission"
)

// Denial is a negative authorization outcome. It is distinct from a store
// fault: a Denial means the caller must re-authenticate or ask for access.
type Denial struct {
	Reason DenialReason
}

func (d *Denial) Error() string {
	return "access denied: " + string(d.Reason)
}

// Status is the HTTP status the denial is rendered with.
func (d *Denial) Status() int {
	if d.Reason == ReasonInsufficientPermission {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// Message is the client-facing text. Invalid tokens and vanished identities
// share a message so callers cannot probe which check failed.
func (d *Denial) Message() string {
	switch d.Reason {
	case ReasonCredentialMissing:
		return "missing bearer token"
	case ReasonCredentialMalformed:
		return "invalid authorization header"
	case ReasonInsufficientPermission:
		return "insufficient permissions"
	default:
		return "invalid or expired token"
	}
}

var (
	ErrCredentialMissing      = &Denial{Reason: ReasonCredentialMissing}
	ErrCredentialMalformed    = &Denial{Reason: ReasonCredentialMalformed}
	ErrCredentialInvalid      = &Denial{Reason: ReasonCredentialInvalid}
	ErrIdentityNotFound       = &Denial{Reason: ReasonIdentityNotFound}
	ErrInsufficientPermission = &Denial{Reason: ReasonInsufficientPermission}
)

// AsDenial returns the denial wrapped in err, if any.
func AsDenial(err error) (*Denial, bool) {
	var d *Denial
	if errors.As(err, &d) {
		return d, true
	}
	return nil, false
}
