package api

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/unza/counseling-identity/docs"
	"github.com/unza/counseling-identity/internal/api/handler"
	"github.com/unza/counseling-identity/internal/api/middleware"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
	infrahttp "github.com/unza/counseling-identity/internal/infrastructure/http"
)

// Services is everything the HTTP API needs from the core.
type Services struct {
	Auth    ports.AuthService
	Admin   ports.AdminService
	Tokens  ports.TokenService
	Users   ports.UserRepository
	Catalog ports.RoleCatalog
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(svc Services, deps infrahttp.Dependencies, log zerolog.Logger) *echo.Echo {
	e := infrahttp.NewServer(log, deps)
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(log)

	// The gate runs on every API request and only ever attaches a principal.
	e.Use(middleware.Authenticate(svc.Tokens, svc.Users, svc.Catalog, log))

	authHandler := handler.NewAuthHandler(svc.Auth)
	adminHandler := handler.NewAdminHandler(svc.Admin, log.With().Str("component", "admin").Logger())

	// --- Auth routes ---
	v1 := e.Group("/api/v1")
	auth := v1.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/register", authHandler.Register)
	auth.GET("/me", authHandler.Me, middleware.RequireAuthenticated())
	auth.GET("/validate-token", authHandler.ValidateToken)
	auth.GET("/permissions", authHandler.Permissions, middleware.RequireAuthenticated())

	// Legacy clients post to the unversioned path.
	e.POST("/auth/login", authHandler.Login)

	// --- Admin routes ---
	admin := v1.Group("/admin", middleware.RequireRoles(domain.RoleAdmin, domain.RoleSuperAdmin))
	admin.POST("/users", adminHandler.CreateUser)
	admin.POST("/users/:email/roles", adminHandler.GrantRoles)
	admin.DELETE("/users/:email/roles/:role", adminHandler.RevokeRole)
	admin.POST("/users/:email/deactivate", adminHandler.Deactivate)
	admin.GET("/identities/:identifier", adminHandler.IdentityStatus)

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}
