package domain

import "errors"

// Authentication and federation failures.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrExternalTransport  = errors.New("identity source unreachable")
	ErrProfileUnavailable = errors.New("identity profile unavailable")
	ErrAccountDisabled    = errors.New("account disabled")

	// ErrIdentityConflict reports an external profile that matches a local
	// account which has not proven ownership of its email.
	ErrIdentityConflict = errors.New("identity conflicts with an unverified local account")
)

// Token verification failures.
var (
	ErrTokenMalformed        = errors.New("token malformed")
	ErrTokenExpired          = errors.New("token expired")
	ErrTokenSignatureInvalid = errors.New("token signature invalid")
	ErrTokenSubjectMismatch  = errors.New("token subject mismatch")
	ErrTokenWrongType        = errors.New("token has wrong type")
)

// Repository and administration failures.
var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
	ErrRoleNotFound = errors.New("role not found")
	ErrInvalidRole  = errors.New("invalid role")
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("access forbidden")

	// ErrReservedIdentity rejects self-service identifiers that belong to
	// the institution or to the bootstrap administrator.
	ErrReservedIdentity = errors.New("identifier is reserved")
)
