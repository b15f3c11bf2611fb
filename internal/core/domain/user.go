package domain

import (
	"slices"
	"strings"
	"time"
)

// AuthenticationSource records which identity system owns a user's credentials.
type AuthenticationSource string

const (
	SourceInternal AuthenticationSource = "INTERNAL"
	SourceSIS      AuthenticationSource = "SIS"
	SourceHR       AuthenticationSource = "HR"
)

// Valid reports whether s is one of the known sources.
func (s AuthenticationSource) Valid() bool {
	switch s {
	case SourceInternal, SourceSIS, SourceHR:
		return true
	}
	return false
}

// LockedPassword is stored as the password hash of externally authenticated
// users. It is not a valid bcrypt hash, so no password can ever match it.
const LockedPassword = "EXTERNALLY_AUTHENTICATED_USER_NO_PASSWORD"

// User is the canonical local account. Every successful login, whatever its
// source, resolves to exactly one User.
type User struct {
	ID                   string               `json:"id"`
	Username             string               `json:"username"`
	Email                string               `json:"email"`
	PasswordHash         string               `json:"-"`
	FirstName            string               `json:"firstName,omitempty"`
	LastName             string               `json:"lastName,omitempty"`
	StudentID            string               `json:"studentId,omitempty"`
	Phone                string               `json:"phone,omitempty"`
	Department           string               `json:"department,omitempty"`
	Program              string               `json:"program,omitempty"`
	YearOfStudy          int                  `json:"yearOfStudy,omitempty"`
	Active               bool                 `json:"active"`
	EmailVerified        bool                 `json:"emailVerified"`
	AuthenticationSource AuthenticationSource `json:"authenticationSource"`
	Roles                []RoleName           `json:"roles"`
	LastLoginAt          *time.Time           `json:"lastLoginAt,omitempty"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// Validate checks the invariants a user must hold before it is persisted.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Username) == "" && strings.TrimSpace(u.Email) == "" {
		return ErrInvalidInput
	}
	if !u.AuthenticationSource.Valid() {
		return ErrInvalidInput
	}
	return nil
}

// CanUsePassword reports whether a local password check is meaningful for u.
func (u *User) CanUsePassword() bool {
	return u.AuthenticationSource == SourceInternal &&
		u.PasswordHash != "" &&
		u.PasswordHash != LockedPassword
}

func (u *User) HasRole(name RoleName) bool {
	return slices.Contains(u.Roles, name)
}

// AddRoles appends the roles u does not already hold and reports whether the
// role set changed. Existing roles are never removed here.
func (u *User) AddRoles(names ...RoleName) bool {
	changed := false
	for _, n := range names {
		if n == "" || u.HasRole(n) {
			continue
		}
		u.Roles = append(u.Roles, n)
		changed = true
	}
	return changed
}

// RemoveRole drops name from the role set. Only explicit administration uses it.
func (u *User) RemoveRole(name RoleName) bool {
	i := slices.Index(u.Roles, name)
	if i < 0 {
		return false
	}
	u.Roles = slices.Delete(u.Roles, i, i+1)
	return true
}

// Clone returns a deep copy so callers can mutate without aliasing storage.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
