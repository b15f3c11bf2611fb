package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/unza/counseling-identity/internal/api/middleware"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

type AuthHandler struct {
	authService ports.AuthService
}

func NewAuthHandler(authService ports.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login authenticates against the local store or the federated identity
// sources and returns a token pair.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.authService.Login(c.Request().Context(), req.Identifier, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLoginResponse(res))
}

// Refresh exchanges a refresh token for a new token pair.
//
// @Summary      Refresh tokens
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      refreshRequest  true  "Refresh token"
// @Success      200   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.authService.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toLoginResponse(res))
}

// Register creates an internal account.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "User registration details"
// @Success      201   {object}  domain.User
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	var role domain.RoleName
	if req.Role != "" {
		r, err := domain.ParseRoleName(req.Role)
		if err != nil {
			return err
		}
		role = r
	}

	user, err := h.authService.Register(c.Request().Context(), ports.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Role:      role,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

// Me returns the authenticated principal.
//
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  meResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/auth/me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, meResponse{User: p.User, Authorities: p.Authorities})
}

// ValidateToken reports whether the bearer token on the request resolved to
// an active principal.
//
// @Summary      Validate access token
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  validateTokenResponse
// @Failure      400  {object}  map[string]string
// @Router       /api/v1/auth/validate-token [get]
func (h *AuthHandler) ValidateToken(c echo.Context) error {
	header := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid authorization header")
	}
	_, ok := middleware.PrincipalFrom(c)
	return c.JSON(http.StatusOK, validateTokenResponse{Valid: ok})
}

// Permissions lists the caller's roles and the permissions they grant.
//
// @Summary      Current permissions
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  permissionsResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/auth/permissions [get]
func (h *AuthHandler) Permissions(c echo.Context) error {
	p, err := ctxPrincipal(c)
	if err != nil {
		return err
	}
	res := permissionsResponse{Roles: []string{}, Permissions: []string{}}
	for _, a := range p.Authorities {
		// Permissions are resource:action pairs; everything else is a role.
		if strings.Contains(a, ":") {
			res.Permissions = append(res.Permissions, a)
		} else {
			res.Roles = append(res.Roles, a)
		}
	}
	return c.JSON(http.StatusOK, res)
}
