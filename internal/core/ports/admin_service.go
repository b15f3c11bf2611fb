package ports

import (
	"context"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// CreateUserInput is an administrator-created internal account.
type CreateUserInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
	Roles     []domain.RoleName
}

// SourceStatus is the answer of one identity source about an identifier.
type SourceStatus struct {
	Source string `json:"source"`
	Exists bool   `json:"exists"`
}

// IdentityStatus summarises where an identifier is known.
type IdentityStatus struct {
	Identifier string         `json:"identifier"`
	LocalUser  *domain.User   `json:"localUser,omitempty"`
	Sources    []SourceStatus `json:"sources"`
}

type AdminService interface {
	Bootstrap(ctx context.Context, in CreateUserInput) (*domain.User, error)
	CreateUser(ctx context.Context, in CreateUserInput) (*domain.User, error)
	GrantRoles(ctx context.Context, email string, roles ...domain.RoleName) (*domain.User, error)
	RevokeRole(ctx context.Context, email string, role domain.RoleName) (*domain.User, error)
	Deactivate(ctx context.Context, email string) (*domain.User, error)
	IdentityStatus(ctx context.Context, identifier string) (*IdentityStatus, error)
}
