package service

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

const (
	roleCacheSize       = 64
	defaultRoleCacheTTL = 30 * time.Second
)

// RoleCatalog resolves role permissions through a short-lived cache so the
// request gate does not hit storage on every call.
type RoleCatalog struct {
	roles ports.RoleRepository
	cache *expirable.LRU[domain.RoleName, []domain.Permission]
	log   zerolog.Logger
}

func NewRoleCatalog(roles ports.RoleRepository, ttl time.Duration, log zerolog.Logger) *RoleCatalog {
	if ttl <= 0 {
		ttl = defaultRoleCacheTTL
	}
	return &RoleCatalog{
		roles: roles,
		cache: expirable.NewLRU[domain.RoleName, []domain.Permission](roleCacheSize, nil, ttl),
		log:   log,
	}
}

// Permissions returns the permissions of name. Storage failures are logged and
// yield no permissions; they are not cached.
func (c *RoleCatalog) Permissions(ctx context.Context, name domain.RoleName) []domain.Permission {
	if perms, ok := c.cache.Get(name); ok {
		return perms
	}

	role, err := c.roles.FindByName(ctx, name)
	switch {
	case errors.Is(err, domain.ErrRoleNotFound):
		c.cache.Add(name, nil)
		return nil
	case err != nil:
		c.log.Warn().Err(err).Str("role", string(name)).Msg("role lookup failed")
		return nil
	}

	c.cache.Add(name, role.Permissions)
	return role.Permissions
}

// Authorities returns role names plus the union of their permissions.
func (c *RoleCatalog) Authorities(ctx context.Context, roles []domain.RoleName) []string {
	perms := make(map[domain.RoleName][]domain.Permission, len(roles))
	for _, r := range roles {
		perms[r] = c.Permissions(ctx, r)
	}
	return domain.Authorities(roles, perms)
}

// Forget drops cached permissions for name.
func (c *RoleCatalog) Forget(name domain.RoleName) {
	c.cache.Remove(name)
}

// Purge drops every cached entry.
func (c *RoleCatalog) Purge() {
	c.cache.Purge()
}
