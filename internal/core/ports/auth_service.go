package ports

import (
	"context"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// LoginResult is returned by a successful login or refresh.
type LoginResult struct {
	Tokens    *domain.TokenPair
	User      *domain.User
	Principal *domain.Principal
	// Degraded is set when the identity source authenticated the user but
	// the profile could not be refreshed, so the stored profile was used.
	Degraded bool
}

// RegisterInput is a self-service internal registration.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Role      domain.RoleName
}

type AuthService interface {
	Login(ctx context.Context, identifier, secret string) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Register(ctx context.Context, in RegisterInput) (*domain.User, error)
}

// TokenService issues and checks signed stateless session tokens.
type TokenService interface {
	Issue(subject string) (*domain.TokenPair, error)
	Verify(token string, principal *domain.Principal, typ domain.TokenType) error
	Validate(token string, principal *domain.Principal) bool
	ExtractSubject(token string) string
}

// RoleCatalog resolves the authorities granted by a role set.
type RoleCatalog interface {
	Authorities(ctx context.Context, roles []domain.RoleName) []string
}
