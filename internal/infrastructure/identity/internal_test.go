package identity

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/infrastructure/db/memory"
)

func seedInternal(t *testing.T, users *memory.UserRepository, u *domain.User, password string) {
	t.Helper()
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		require.NoError(t, err)
		u.PasswordHash = string(hash)
	}
	_, err := users.Create(context.Background(), u)
	require.NoError(t, err)
}

func TestInternal_Authenticate(t *testing.T) {
	users := memory.NewUserRepository()
	seedInternal(t, users, &domain.User{
		Username: "admin", Email: "admin@unza.zm", Active: true,
		AuthenticationSource: domain.SourceInternal, Roles: []domain.RoleName{domain.RoleAdmin},
	}, "s3cret")
	seedInternal(t, users, &domain.User{
		Username: "gone", Email: "gone@unza.zm", Active: false,
		AuthenticationSource: domain.SourceInternal,
	}, "s3cret")
	seedInternal(t, users, &domain.User{
		Username: "2021001234", Email: "2021001234@unza.zm", Active: true,
		PasswordHash: domain.LockedPassword, AuthenticationSource: domain.SourceSIS,
	}, "")

	src, err := NewInternal(users, zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	res, err := src.Authenticate(ctx, "ADMIN@unza.zm", "s3cret")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, []domain.RoleName{domain.RoleAdmin}, res.Profile.RolesHint)

	res, err = src.Authenticate(ctx, "admin", "s3cret")
	require.NoError(t, err)
	assert.True(t, res.Success, "username works as identifier")

	for _, tc := range []struct{ id, pw string }{
		{"admin", "wrong"},
		{"gone", "s3cret"},
		{"nobody", "s3cret"},
		{"2021001234", domain.LockedPassword},
	} {
		res, err := src.Authenticate(ctx, tc.id, tc.pw)
		require.NoError(t, err)
		assert.False(t, res.Success, tc.id)
	}

	assert.True(t, src.ProfileExists(ctx, "admin"))
	assert.False(t, src.ProfileExists(ctx, "nobody"))
	p, err := src.FetchProfile(ctx, "admin@unza.zm")
	require.NoError(t, err)
	assert.Equal(t, "admin", p.Username)
}
