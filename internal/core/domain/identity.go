package domain

import "slices"

// ExternalProfile is what an identity source hands back after a successful
// credential check. It lives only for the duration of a login.
type ExternalProfile struct {
	ExternalID     string
	ExternalSystem string
	Source         AuthenticationSource
	Username       string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	StudentID      string
	Department     string
	Program        string
	YearOfStudy    int
	RolesHint      []RoleName
}

// AuthResult is the outcome of a single identity source attempt. A negative
// result is not an error: it means the source answered and said no.
type AuthResult struct {
	Success bool
	Profile *ExternalProfile
	Message string
}

// Denied builds a negative AuthResult.
func Denied(msg string) AuthResult {
	return AuthResult{Message: msg}
}

// Accepted builds a positive AuthResult carrying p.
func Accepted(p *ExternalProfile) AuthResult {
	return AuthResult{Success: true, Profile: p}
}

// TokenType distinguishes access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenPair is returned to the client after login or refresh.
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Principal is the authenticated identity attached to a request.
type Principal struct {
	User        *User
	Authorities []string
}

// Subject is the token subject, which is always the user's email.
func (p *Principal) Subject() string {
	if p == nil || p.User == nil {
		return ""
	}
	return p.User.Email
}

func (p *Principal) HasAuthority(a string) bool {
	return p != nil && slices.Contains(p.Authorities, a)
}

func (p *Principal) HasRole(r RoleName) bool {
	return p.HasAuthority(string(r))
}

// HasAnyRole reports whether p holds at least one of roles.
func (p *Principal) HasAnyRole(roles ...RoleName) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// Authorities flattens role names and the permissions of each role into one
// de-duplicated list. Roles come first, in the user's order.
func Authorities(roles []RoleName, catalog map[RoleName][]Permission) []string {
	seen := make(map[string]struct{}, len(roles)*4)
	out := make([]string, 0, len(roles)*4)
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, r := range roles {
		add(string(r))
	}
	for _, r := range roles {
		for _, p := range catalog[r] {
			add(string(p))
		}
	}
	return out
}
