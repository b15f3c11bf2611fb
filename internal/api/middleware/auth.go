package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/api/metrics"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

// PrincipalKey is the echo context key holding the *domain.Principal.
const PrincipalKey = "principal"

type principalCtxKey struct{}

// Authenticate resolves the bearer token into a principal when it can. It
// never rejects a request: missing or unusable tokens leave the request
// anonymous and access decisions are left to RequireAuthenticated and RBAC.
func Authenticate(tokens ports.TokenService, users ports.UserRepository, catalog ports.RoleCatalog, log zerolog.Logger) echo.MiddlewareFunc {
	g := &gate{tokens: tokens, users: users, catalog: catalog, log: log}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if p := g.resolve(c); p != nil {
				c.Set(PrincipalKey, p)
				c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			}
			return next(c)
		}
	}
}

type gate struct {
	tokens  ports.TokenService
	users   ports.UserRepository
	catalog ports.RoleCatalog
	log     zerolog.Logger
}

func (g *gate) resolve(c echo.Context) (p *domain.Principal) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error().Interface("panic", r).Str("path", c.Path()).Msg("authentication gate recovered")
			p = nil
		}
	}()

	token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		metrics.GateDecisionsTotal.WithLabelValues("anonymous").Inc()
		return nil
	}

	subject := g.tokens.ExtractSubject(token)
	if subject == "" {
		g.log.Debug().Str("path", c.Path()).Msg("bearer token unreadable")
		metrics.GateDecisionsTotal.WithLabelValues("invalid_token").Inc()
		return nil
	}

	ctx := c.Request().Context()
	user, err := g.users.FindByEmail(ctx, subject)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			g.log.Warn().Err(err).Str("subject", subject).Msg("principal lookup failed")
		}
		metrics.GateDecisionsTotal.WithLabelValues("unknown_user").Inc()
		return nil
	}
	if !user.Active {
		metrics.GateDecisionsTotal.WithLabelValues("inactive_user").Inc()
		return nil
	}

	principal := &domain.Principal{User: user, Authorities: g.catalog.Authorities(ctx, user.Roles)}
	if !g.tokens.Validate(token, principal) {
		metrics.GateDecisionsTotal.WithLabelValues("invalid_token").Inc()
		return nil
	}

	metrics.GateDecisionsTotal.WithLabelValues("authenticated").Inc()
	return principal
}

// bearerToken extracts the token of a "Bearer <token>" header value.
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// WithPrincipal stores p on ctx for code below the HTTP layer.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFromContext returns the principal stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (*domain.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*domain.Principal)
	return p, ok && p != nil
}

// PrincipalFrom returns the principal attached to c by Authenticate.
func PrincipalFrom(c echo.Context) (*domain.Principal, bool) {
	p, ok := c.Get(PrincipalKey).(*domain.Principal)
	return p, ok && p != nil
}
