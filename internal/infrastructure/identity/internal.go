package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

// Internal authenticates against bcrypt hashes in the local user store.
type Internal struct {
	users     ports.UserRepository
	dummyHash []byte
	log       zerolog.Logger
}

func NewInternal(users ports.UserRepository, log zerolog.Logger) (*Internal, error) {
	// Compared against when the user does not exist so misses cost the same
	// as wrong passwords.
	dummy, err := bcrypt.GenerateFromPassword([]byte("unused-internal-password"), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("internal source: %w", err)
	}
	return &Internal{users: users, dummyHash: dummy, log: log}, nil
}

func (s *Internal) Name() string { return string(domain.SourceInternal) }

// Authenticate succeeds only for active INTERNAL users whose hash matches.
// Storage failures are returned as errors.
func (s *Internal) Authenticate(ctx context.Context, identifier, secret string) (domain.AuthResult, error) {
	u, err := s.find(ctx, identifier)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return domain.Denied("user not found"), nil
	}
	if err != nil {
		s.log.Error().Err(err).Str("identifier", identifier).Msg("internal user lookup failed")
		return domain.AuthResult{}, err
	}

	if !u.CanUsePassword() {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return domain.Denied("account has no local password"), nil
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(secret)) != nil {
		return domain.Denied("password mismatch"), nil
	}
	if !u.Active {
		return domain.Denied("account disabled"), nil
	}
	return domain.Accepted(profileFromUser(u)), nil
}

func (s *Internal) ProfileExists(ctx context.Context, identifier string) bool {
	_, err := s.find(ctx, identifier)
	return err == nil
}

func (s *Internal) FetchProfile(ctx context.Context, identifier string) (*domain.ExternalProfile, error) {
	u, err := s.find(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return profileFromUser(u), nil
}

func (s *Internal) find(ctx context.Context, identifier string) (*domain.User, error) {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		u, err := s.users.FindByEmail(ctx, strings.ToLower(identifier))
		if !errors.Is(err, domain.ErrUserNotFound) {
			return u, err
		}
	}
	return s.users.FindByUsername(ctx, identifier)
}

func profileFromUser(u *domain.User) *domain.ExternalProfile {
	return &domain.ExternalProfile{
		ExternalID:     u.Username,
		ExternalSystem: string(domain.SourceInternal),
		Source:         u.AuthenticationSource,
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		Phone:          u.Phone,
		StudentID:      u.StudentID,
		Department:     u.Department,
		Program:        u.Program,
		YearOfStudy:    u.YearOfStudy,
		RolesHint:      append([]domain.RoleName(nil), u.Roles...),
	}
}
