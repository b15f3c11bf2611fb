package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

var roleDescriptions = map[domain.RoleName]string{
	domain.RoleAdmin:      "System Administrator with full access",
	domain.RoleSuperAdmin: "Super Administrator with complete system control",
}

// AdminService manages internal accounts and role assignments.
type AdminService struct {
	users      ports.UserRepository
	roles      ports.RoleRepository
	reconciler *Reconciler
	sources    []ports.IdentitySource
	now        func() time.Time
	log        zerolog.Logger
}

func NewAdminService(
	users ports.UserRepository,
	roles ports.RoleRepository,
	reconciler *Reconciler,
	sources []ports.IdentitySource,
	log zerolog.Logger,
) *AdminService {
	return &AdminService{
		users:      users,
		roles:      roles,
		reconciler: reconciler,
		sources:    sources,
		now:        time.Now,
		log:        log,
	}
}

// Bootstrap makes sure the initial administrator exists and holds both
// administrative roles. An existing administrator-created account keeps its
// password and any other roles it already has. A self-registered account
// holding the bootstrap email is reclaimed: its password is reset to the
// configured one and its self-service roles are dropped. Accounts owned by
// an external source are never promoted.
func (s *AdminService) Bootstrap(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	required := []domain.RoleName{domain.RoleAdmin, domain.RoleSuperAdmin}
	for _, r := range required {
		if _, err := s.roles.GetOrCreate(ctx, r, roleDescriptions[r]); err != nil {
			return nil, fmt.Errorf("bootstrap role %s: %w", r, err)
		}
	}

	existing, err := s.users.FindByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, domain.ErrUserNotFound) {
		if in.FirstName == "" && in.LastName == "" {
			in.FirstName, in.LastName = "System", "Administrator"
		}
		in.Roles = required
		u, err := createInternalUser(ctx, s.users, s.reconciler, in, true, s.now().UTC())
		if err != nil {
			return nil, err
		}
		s.log.Info().Str("email", u.Email).Str("username", u.Username).Msg("initial admin user created")
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bootstrap lookup: %w", err)
	}

	if existing.AuthenticationSource != domain.SourceInternal {
		s.log.Error().
			Str("email", existing.Email).
			Str("source", string(existing.AuthenticationSource)).
			Msg("bootstrap email belongs to an external account, refusing to promote")
		return nil, fmt.Errorf("bootstrap %s: %w", existing.Email, domain.ErrIdentityConflict)
	}
	if !existing.EmailVerified {
		return s.reclaimAdmin(ctx, existing, in.Password, required)
	}

	if !existing.AddRoles(required...) {
		s.log.Info().Str("email", existing.Email).Msg("admin user already has all required roles")
		return existing, nil
	}
	existing.UpdatedAt = s.now().UTC()
	updated, err := s.users.Update(ctx, existing)
	if err != nil {
		return nil, fmt.Errorf("bootstrap update: %w", err)
	}
	s.log.Info().Str("email", updated.Email).Msg("admin user updated with required roles")
	return updated, nil
}

// reclaimAdmin takes a self-registered account back for the administrator.
func (s *AdminService) reclaimAdmin(ctx context.Context, u *domain.User, password string, roles []domain.RoleName) (*domain.User, error) {
	if password == "" {
		return nil, fmt.Errorf("bootstrap reclaim: %w", domain.ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u.PasswordHash = string(hash)
	u.EmailVerified = true
	u.Roles = nil
	u.AddRoles(roles...)
	u.UpdatedAt = s.now().UTC()
	updated, err := s.users.Update(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("bootstrap reclaim: %w", err)
	}
	s.log.Warn().
		Str("email", updated.Email).
		Str("username", updated.Username).
		Msg("self-registered account held the admin email, password reset and roles replaced")
	return updated, nil
}

func (s *AdminService) CreateUser(ctx context.Context, in ports.CreateUserInput) (*domain.User, error) {
	if len(in.Roles) == 0 {
		in.Roles = []domain.RoleName{s.reconciler.policy.InternalRole}
	}
	return createInternalUser(ctx, s.users, s.reconciler, in, true, s.now().UTC())
}

func (s *AdminService) GrantRoles(ctx context.Context, email string, roles ...domain.RoleName) (*domain.User, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("grant roles: %w", domain.ErrInvalidRole)
	}
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if err := s.reconciler.EnsureRoles(ctx, roles...); err != nil {
		return nil, err
	}
	if !u.AddRoles(roles...) {
		return u, nil
	}
	u.UpdatedAt = s.now().UTC()
	return s.users.Update(ctx, u)
}

// RevokeRole is the only path that removes a role from a user.
func (s *AdminService) RevokeRole(ctx context.Context, email string, role domain.RoleName) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !u.RemoveRole(role) {
		return u, nil
	}
	u.UpdatedAt = s.now().UTC()
	updated, err := s.users.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("email", u.Email).Str("role", string(role)).Msg("role revoked")
	return updated, nil
}

func (s *AdminService) Deactivate(ctx context.Context, email string) (*domain.User, error) {
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return u, nil
	}
	u.Active = false
	u.UpdatedAt = s.now().UTC()
	updated, err := s.users.Update(ctx, u)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("email", u.Email).Msg("user deactivated")
	return updated, nil
}

// IdentityStatus asks the local store and every identity source whether they
// know identifier.
func (s *AdminService) IdentityStatus(ctx context.Context, identifier string) (*ports.IdentityStatus, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.ErrInvalidInput
	}

	status := &ports.IdentityStatus{Identifier: identifier}
	local, err := s.reconciler.lookup(ctx, normalizeEmail(identifier), identifier)
	if err != nil {
		return nil, err
	}
	status.LocalUser = local

	for _, src := range s.sources {
		status.Sources = append(status.Sources, ports.SourceStatus{
			Source: src.Name(),
			Exists: src.ProfileExists(ctx, identifier),
		})
	}
	return status, nil
}

// createInternalUser stores a new INTERNAL account. verified is true only for
// accounts an administrator vouches for; self-registered ones stay unverified
// and can never absorb an external profile.
func createInternalUser(ctx context.Context, users ports.UserRepository, rec *Reconciler, in ports.CreateUserInput, verified bool, now time.Time) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	username := strings.ToLower(strings.TrimSpace(in.Username))
	if email == "" || username == "" || in.Password == "" {
		return nil, fmt.Errorf("create user: %w", domain.ErrInvalidInput)
	}

	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	if exists {
		return nil, domain.ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if err := rec.EnsureRoles(ctx, in.Roles...); err != nil {
		return nil, err
	}

	u := &domain.User{
		Username:             username,
		Email:                email,
		PasswordHash:         string(hash),
		FirstName:            in.FirstName,
		LastName:             in.LastName,
		Phone:                in.Phone,
		Active:               true,
		EmailVerified:        verified,
		AuthenticationSource: domain.SourceInternal,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	u.AddRoles(in.Roles...)
	return users.Create(ctx, u)
}
