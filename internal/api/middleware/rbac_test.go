package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/unza/counseling-identity/internal/core/domain"
)

func runGuarded(p *domain.Principal, guard echo.MiddlewareFunc) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if p != nil {
		c.Set(PrincipalKey, p)
	}
	h := guard(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	_ = h(c)
	return rec
}

func principalWith(authorities ...string) *domain.Principal {
	return &domain.Principal{User: &domain.User{Email: "x@unza.zm"}, Authorities: authorities}
}

func TestRequireAuthenticated(t *testing.T) {
	rec := runGuarded(nil, RequireAuthenticated())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"authentication required"}`, rec.Body.String())

	rec = runGuarded(principalWith(), RequireAuthenticated())
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRoles(t *testing.T) {
	admins := RequireRoles(domain.RoleAdmin, domain.RoleSuperAdmin)

	tests := []struct {
		name string
		p    *domain.Principal
		want int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"student", principalWith("STUDENT", "assessment:read"), http.StatusForbidden},
		{"permission named like a role does not count", principalWith("admin"), http.StatusForbidden},
		{"admin", principalWith("ADMIN"), http.StatusOK},
		{"super admin", principalWith("COUNSELOR", "SUPER_ADMIN"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := runGuarded(tt.p, admins)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
			}
		})
	}
}

func TestRequireAuthority(t *testing.T) {
	guard := RequireAuthority(string(domain.PermUserAdmin))

	assert.Equal(t, http.StatusUnauthorized, runGuarded(nil, guard).Code)
	assert.Equal(t, http.StatusForbidden, runGuarded(principalWith("COUNSELOR", "client:read"), guard).Code)
	assert.Equal(t, http.StatusOK, runGuarded(principalWith("ADMIN", "user:admin"), guard).Code)
}
