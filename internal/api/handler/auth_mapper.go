package handler

import (
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

func toLoginResponse(res *ports.LoginResult) loginResponse {
	out := loginResponse{
		User:     res.User,
		Degraded: res.Degraded,
	}
	if res.Tokens != nil {
		out.Token = res.Tokens.AccessToken
		out.RefreshToken = res.Tokens.RefreshToken
		out.ExpiresIn = res.Tokens.ExpiresIn
	}
	if res.Principal != nil {
		out.Authorities = res.Principal.Authorities
	}
	return out
}

// parseRoles maps request role names to domain roles. Unknown names fail
// with domain.ErrInvalidRole.
func parseRoles(names []string) ([]domain.RoleName, error) {
	roles := make([]domain.RoleName, 0, len(names))
	for _, n := range names {
		r, err := domain.ParseRoleName(n)
		if err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, nil
}
