package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

type AdminHandler struct {
	adminService ports.AdminService
	log          zerolog.Logger
}

func NewAdminHandler(adminService ports.AdminService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{adminService: adminService, log: log}
}

// CreateUser creates an internal account with the requested roles.
//
// @Summary      Create internal user
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createUserRequest  true  "New user"
// @Success      201   {object}  domain.User
// @Failure      400   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/admin/users [post]
func (h *AdminHandler) CreateUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	roles, err := parseRoles(req.Roles)
	if err != nil {
		return err
	}

	user, err := h.adminService.CreateUser(c.Request().Context(), ports.CreateUserInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Roles:     roles,
	})
	if err != nil {
		return err
	}
	h.audit(c, "create_user", user.Email)
	return c.JSON(http.StatusCreated, user)
}

// GrantRoles adds roles to a user. Roles already held are kept.
//
// @Summary      Grant roles
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string             true  "User email"
// @Param        body   body      grantRolesRequest  true  "Roles to grant"
// @Success      200    {object}  domain.User
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/admin/users/{email}/roles [post]
func (h *AdminHandler) GrantRoles(c echo.Context) error {
	var req grantRolesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	roles, err := parseRoles(req.Roles)
	if err != nil {
		return err
	}

	user, err := h.adminService.GrantRoles(c.Request().Context(), c.Param("email"), roles...)
	if err != nil {
		return err
	}
	h.audit(c, "grant_roles", user.Email)
	return c.JSON(http.StatusOK, user)
}

// RevokeRole removes a single role from a user.
//
// @Summary      Revoke role
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "User email"
// @Param        role   path      string  true  "Role name"
// @Success      200    {object}  domain.User
// @Failure      400    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/admin/users/{email}/roles/{role} [delete]
func (h *AdminHandler) RevokeRole(c echo.Context) error {
	role, err := domain.ParseRoleName(c.Param("role"))
	if err != nil {
		return err
	}
	user, err := h.adminService.RevokeRole(c.Request().Context(), c.Param("email"), role)
	if err != nil {
		return err
	}
	h.audit(c, "revoke_role", user.Email)
	return c.JSON(http.StatusOK, user)
}

// Deactivate disables an account. Tokens already issued to it stop
// authenticating on the next request.
//
// @Summary      Deactivate user
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        email  path      string  true  "User email"
// @Success      200    {object}  domain.User
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/admin/users/{email}/deactivate [post]
func (h *AdminHandler) Deactivate(c echo.Context) error {
	user, err := h.adminService.Deactivate(c.Request().Context(), c.Param("email"))
	if err != nil {
		return err
	}
	h.audit(c, "deactivate", user.Email)
	return c.JSON(http.StatusOK, user)
}

// IdentityStatus reports where an identifier is known.
//
// @Summary      Identity status
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        identifier  path      string  true  "Email, username, student or man number"
// @Success      200         {object}  ports.IdentityStatus
// @Router       /api/v1/admin/identities/{identifier} [get]
func (h *AdminHandler) IdentityStatus(c echo.Context) error {
	status, err := h.adminService.IdentityStatus(c.Request().Context(), c.Param("identifier"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (h *AdminHandler) audit(c echo.Context, action, target string) {
	actor := ""
	if p, err := ctxPrincipal(c); err == nil {
		actor = p.Subject()
	}
	h.log.Info().
		Str("action", action).
		Str("actor", actor).
		Str("target", target).
		Msg("admin action")
}
