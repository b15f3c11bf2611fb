package handler

import "github.com/unza/counseling-identity/internal/core/domain"

// loginRequest accepts an email, username, student number or man number
// as identifier.
type loginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type registerRequest struct {
	Username  string `json:"username"  validate:"required,min=3,max=64"`
	Email     string `json:"email"     validate:"required,email"`
	Password  string `json:"password"  validate:"required,min=8"`
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName"  validate:"required"`
	Phone     string `json:"phone,omitempty"`
	Role      string `json:"role,omitempty"`
}

type loginResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
	User         *domain.User `json:"user"`
	Authorities  []string     `json:"authorities"`
	Degraded     bool         `json:"degraded,omitempty"`
}

type meResponse struct {
	User        *domain.User `json:"user"`
	Authorities []string     `json:"authorities"`
}

type validateTokenResponse struct {
	Valid bool `json:"valid"`
}

type permissionsResponse struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
