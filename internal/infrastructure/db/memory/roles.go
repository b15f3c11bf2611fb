package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/unza/counseling-identity/internal/core/domain"
)

type RoleRepository struct {
	mu    sync.Mutex
	roles map[domain.RoleName]*domain.Role
}

func NewRoleRepository() *RoleRepository {
	return &RoleRepository{roles: make(map[domain.RoleName]*domain.Role)}
}

func cloneRole(r *domain.Role) *domain.Role {
	c := *r
	c.Permissions = slices.Clone(r.Permissions)
	return &c
}

func (r *RoleRepository) FindByName(_ context.Context, name domain.RoleName) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[name]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return cloneRole(role), nil
}

func (r *RoleRepository) GetOrCreate(_ context.Context, name domain.RoleName, description string) (*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if role, ok := r.roles[name]; ok {
		return cloneRole(role), nil
	}
	role := domain.NewRole(name, description)
	role.ID = uuid.NewString()
	r.roles[name] = role
	return cloneRole(role), nil
}

func (r *RoleRepository) List(_ context.Context) ([]*domain.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Role, 0, len(r.roles))
	for _, name := range domain.AllRoles() {
		if role, ok := r.roles[name]; ok {
			out = append(out, cloneRole(role))
		}
	}
	return out, nil
}
