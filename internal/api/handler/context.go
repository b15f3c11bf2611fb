package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/unza/counseling-identity/internal/api/middleware"
	"github.com/unza/counseling-identity/internal/core/domain"
)

// ctxPrincipal returns the principal resolved by the authentication gate.
// Routes behind RequireAuthenticated always have one; the 401 covers
// handlers mounted without it.
func ctxPrincipal(c echo.Context) (*domain.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return p, nil
}
