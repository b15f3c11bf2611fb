package ports

import (
	"context"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// IdentitySource checks credentials against one identity system.
//
// Authenticate returns a negative AuthResult with a nil error when the source
// rejected the credentials. A non-nil error wraps domain.ErrExternalTransport
// or domain.ErrProfileUnavailable.
type IdentitySource interface {
	Name() string
	Authenticate(ctx context.Context, identifier, secret string) (domain.AuthResult, error)
	// ProfileExists is best-effort and reports false on any failure.
	ProfileExists(ctx context.Context, identifier string) bool
	FetchProfile(ctx context.Context, identifier string) (*domain.ExternalProfile, error)
}
