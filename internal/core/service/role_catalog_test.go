package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/infrastructure/db/memory"
)

type countingRoles struct {
	*memory.RoleRepository
	lookups int
	fail    bool
}

func (c *countingRoles) FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error) {
	c.lookups++
	if c.fail {
		return nil, errors.New("connection refused")
	}
	return c.RoleRepository.FindByName(ctx, name)
}

func TestRoleCatalog_CachesLookups(t *testing.T) {
	roles := &countingRoles{RoleRepository: memory.NewRoleRepository()}
	ctx := context.Background()
	_, err := roles.GetOrCreate(ctx, domain.RoleCounselor, "")
	require.NoError(t, err)

	c := NewRoleCatalog(roles, time.Minute, zerolog.Nop())
	first := c.Authorities(ctx, []domain.RoleName{domain.RoleCounselor})
	second := c.Authorities(ctx, []domain.RoleName{domain.RoleCounselor})

	assert.Equal(t, first, second)
	assert.Equal(t, "COUNSELOR", first[0])
	assert.Contains(t, first, string(domain.PermClientWrite))
	assert.Equal(t, 1, roles.lookups)

	c.Forget(domain.RoleCounselor)
	c.Authorities(ctx, []domain.RoleName{domain.RoleCounselor})
	assert.Equal(t, 2, roles.lookups)

	c.Purge()
	c.Authorities(ctx, []domain.RoleName{domain.RoleCounselor})
	assert.Equal(t, 3, roles.lookups)
}

func TestRoleCatalog_UnknownRoleStillYieldsRoleName(t *testing.T) {
	c := NewRoleCatalog(memory.NewRoleRepository(), time.Minute, zerolog.Nop())
	assert.Equal(t, []string{"STUDENT"}, c.Authorities(context.Background(), []domain.RoleName{domain.RoleStudent}))
}

func TestRoleCatalog_DoesNotCacheFailures(t *testing.T) {
	roles := &countingRoles{RoleRepository: memory.NewRoleRepository(), fail: true}
	c := NewRoleCatalog(roles, time.Minute, zerolog.Nop())
	ctx := context.Background()

	assert.Nil(t, c.Permissions(ctx, domain.RoleAdmin))
	assert.Nil(t, c.Permissions(ctx, domain.RoleAdmin))
	assert.Equal(t, 2, roles.lookups)
}
