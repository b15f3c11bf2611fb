package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcess_Defaults(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "mongo", cfg.StorageDriver)
	assert.Equal(t, "noop", cfg.Notifier)
	assert.Equal(t, 24*time.Hour, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Zero(t, cfg.JWT.Leeway)
	assert.Equal(t, 20*time.Second, cfg.Login.Timeout)
	assert.Equal(t, []string{"admin@unza.zm"}, cfg.Login.InternalIdentities)
	assert.Equal(t, "https://devoap.unza.zm", cfg.SIS.UndergraduateURL)
	assert.False(t, cfg.SIS.Parallel)
	assert.False(t, cfg.SIS.CheckProfiles)
	assert.Equal(t, "COUNSELOR", cfg.Provisioning.StaffRole)
}

func TestProcess_Overrides(t *testing.T) {
	cfg, err := Process(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":                "s",
		"ENV":                       "production",
		"STORAGE_DRIVER":            "memory",
		"LOGIN_INTERNAL_IDENTITIES": "admin@unza.zm,ops@unza.zm",
		"JWT_ACCESS_TTL":            "15m",
		"SIS_PARALLEL":              "true",
		"SIS_CHECK_PROFILES":        "true",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "memory", cfg.StorageDriver)
	assert.Equal(t, []string{"admin@unza.zm", "ops@unza.zm"}, cfg.Login.InternalIdentities)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.True(t, cfg.SIS.Parallel)
	assert.True(t, cfg.SIS.CheckProfiles)
}

func TestProcess_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":  {},
		"unknown storage": {"JWT_SECRET": "s", "STORAGE_DRIVER": "postgres"},
		"zero timeout":    {"JWT_SECRET": "s", "LOGIN_TIMEOUT": "0s"},
		"negative ttl":    {"JWT_SECRET": "s", "JWT_REFRESH_TTL": "-1h"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Process(context.Background(), envconfig.MapLookuper(env))
			assert.Error(t, err)
		})
	}
}
