package ports

import (
	"context"

	"github.com/unza/counseling-identity/internal/core/domain"
)

// UserRepository persists canonical users. Email and username are unique;
// Create returns domain.ErrUserExists when either collides.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) (*domain.User, error)
}

// RoleRepository is the role catalog.
type RoleRepository interface {
	FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error)
	// GetOrCreate returns the existing role unmodified, or inserts a new one.
	// Concurrent callers for the same name all observe the same role.
	GetOrCreate(ctx context.Context, name domain.RoleName, description string) (*domain.Role, error)
	List(ctx context.Context) ([]*domain.Role, error)
}
