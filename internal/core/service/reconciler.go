package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/unza/counseling-identity/internal/api/metrics"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

// ProvisioningPolicy decides what newly provisioned accounts look like.
type ProvisioningPolicy struct {
	// EmailDomain is used to synthesize an email when a source returns none.
	EmailDomain  string
	StudentRole  domain.RoleName
	StaffRole    domain.RoleName
	InternalRole domain.RoleName
}

// DefaultProvisioningPolicy matches the university's account conventions.
func DefaultProvisioningPolicy() ProvisioningPolicy {
	return ProvisioningPolicy{
		EmailDomain:  "unza.zm",
		StudentRole:  domain.RoleStudent,
		StaffRole:    domain.RoleCounselor,
		InternalRole: domain.RoleClient,
	}
}

// DefaultRole is the role granted to a new account from src when the source
// gave no hint.
func (p ProvisioningPolicy) DefaultRole(src domain.AuthenticationSource) domain.RoleName {
	switch src {
	case domain.SourceSIS:
		return p.StudentRole
	case domain.SourceHR:
		return p.StaffRole
	default:
		return p.InternalRole
	}
}

// Reconciler maps external profiles onto canonical users, creating them on
// first login and refreshing them afterwards.
type Reconciler struct {
	users  ports.UserRepository
	roles  ports.RoleRepository
	policy ProvisioningPolicy
	group  singleflight.Group
	now    func() time.Time
	log    zerolog.Logger
}

func NewReconciler(users ports.UserRepository, roles ports.RoleRepository, policy ProvisioningPolicy, log zerolog.Logger) *Reconciler {
	def := DefaultProvisioningPolicy()
	if policy.EmailDomain == "" {
		policy.EmailDomain = def.EmailDomain
	}
	if policy.StudentRole == "" {
		policy.StudentRole = def.StudentRole
	}
	if policy.StaffRole == "" {
		policy.StaffRole = def.StaffRole
	}
	if policy.InternalRole == "" {
		policy.InternalRole = def.InternalRole
	}
	return &Reconciler{users: users, roles: roles, policy: policy, now: time.Now, log: log}
}

type reconcileOutcome struct {
	user    *domain.User
	created bool
}

// Reconcile returns the canonical user for p and whether it was just created.
// Concurrent calls for the same identity share one execution.
func (r *Reconciler) Reconcile(ctx context.Context, p *domain.ExternalProfile) (*domain.User, bool, error) {
	if p == nil {
		return nil, false, fmt.Errorf("reconcile: %w", domain.ErrInvalidInput)
	}
	username := firstNonEmpty(p.Username, p.ExternalID)
	email := normalizeEmail(p.Email)
	if username == "" && email == "" {
		return nil, false, fmt.Errorf("reconcile: profile has no identifier: %w", domain.ErrInvalidInput)
	}

	key := string(p.Source) + ":" + strings.ToLower(firstNonEmpty(username, email))
	v, err, _ := r.group.Do(key, func() (any, error) {
		u, created, err := r.reconcile(ctx, p, username, email)
		return reconcileOutcome{user: u, created: created}, err
	})
	if err != nil {
		return nil, false, err
	}
	out := v.(reconcileOutcome)
	return out.user.Clone(), out.created, nil
}

func (r *Reconciler) reconcile(ctx context.Context, p *domain.ExternalProfile, username, email string) (*domain.User, bool, error) {
	existing, err := r.lookup(ctx, email, username)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		created, err := r.create(ctx, p, username, email)
		if err == nil {
			return created, true, nil
		}
		if !errors.Is(err, domain.ErrUserExists) {
			return nil, false, err
		}

		// Lost a race with another process provisioning the same person.
		r.log.Debug().Str("username", username).Msg("concurrent provisioning detected, updating instead")
		existing, err = r.lookup(ctx, firstNonEmpty(email, r.synthesizeEmail(username)), username)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, fmt.Errorf("reconcile %q: user vanished after duplicate key", username)
		}
	}

	updated, err := r.update(ctx, existing, p)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// lookup finds a user by email, falling back to username. A miss is (nil, nil).
func (r *Reconciler) lookup(ctx context.Context, email, username string) (*domain.User, error) {
	if email != "" {
		u, err := r.users.FindByEmail(ctx, email)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("lookup user by email: %w", err)
		}
	}
	if username != "" {
		u, err := r.users.FindByUsername(ctx, username)
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("lookup user by username: %w", err)
		}
	}
	return nil, nil
}

func (r *Reconciler) create(ctx context.Context, p *domain.ExternalProfile, username, email string) (*domain.User, error) {
	verified := email != ""
	if email == "" {
		email = r.synthesizeEmail(username)
	}
	if username == "" {
		username = email
	}

	roles := p.RolesHint
	if len(roles) == 0 {
		roles = []domain.RoleName{r.policy.DefaultRole(p.Source)}
	}
	if err := r.EnsureRoles(ctx, roles...); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	u := &domain.User{
		Username:             username,
		Email:                email,
		PasswordHash:         domain.LockedPassword,
		FirstName:            p.FirstName,
		LastName:             p.LastName,
		StudentID:            p.StudentID,
		Phone:                p.Phone,
		Department:           p.Department,
		Program:              p.Program,
		YearOfStudy:          p.YearOfStudy,
		Active:               true,
		EmailVerified:        verified,
		AuthenticationSource: p.Source,
		LastLoginAt:          &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	u.AddRoles(roles...)
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("provision user: %w", err)
	}

	created, err := r.users.Create(ctx, u)
	if err != nil {
		return nil, err
	}

	metrics.UsersProvisionedTotal.WithLabelValues(string(p.Source), "created").Inc()
	r.log.Info().
		Str("user_id", created.ID).
		Str("username", created.Username).
		Str("source", string(p.Source)).
		Str("external_system", p.ExternalSystem).
		Msg("user provisioned")
	return created, nil
}

func (r *Reconciler) update(ctx context.Context, u *domain.User, p *domain.ExternalProfile) (*domain.User, error) {
	if !u.Active {
		return nil, fmt.Errorf("reconcile %q: %w", u.Email, domain.ErrAccountDisabled)
	}
	// A self-registered account has only claimed its email, so it must not
	// take over the external identity behind it.
	if u.AuthenticationSource == domain.SourceInternal && !u.EmailVerified {
		metrics.UsersProvisionedTotal.WithLabelValues(string(p.Source), "conflict").Inc()
		r.log.Warn().
			Str("user_id", u.ID).
			Str("email", u.Email).
			Str("source", string(p.Source)).
			Str("external_id", p.ExternalID).
			Msg("external profile matches an unverified internal account, not linking")
		return nil, fmt.Errorf("reconcile %q: %w", u.Email, domain.ErrIdentityConflict)
	}

	applyProfile(u, p)
	if u.AuthenticationSource != domain.SourceInternal && p.Source.Valid() {
		u.AuthenticationSource = p.Source
	}
	if len(p.RolesHint) > 0 {
		if err := r.EnsureRoles(ctx, p.RolesHint...); err != nil {
			return nil, err
		}
		u.AddRoles(p.RolesHint...)
	}

	now := r.now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now

	updated, err := r.users.Update(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("update reconciled user: %w", err)
	}
	metrics.UsersProvisionedTotal.WithLabelValues(string(p.Source), "updated").Inc()
	return updated, nil
}

// TouchLogin records a successful login on u without changing its profile.
func (r *Reconciler) TouchLogin(ctx context.Context, u *domain.User) (*domain.User, error) {
	now := r.now().UTC()
	u.LastLoginAt = &now
	u.UpdatedAt = now
	updated, err := r.users.Update(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	return updated, nil
}

// EnsureRoles get-or-creates every named role in the catalog.
func (r *Reconciler) EnsureRoles(ctx context.Context, names ...domain.RoleName) error {
	for _, n := range names {
		if _, err := r.roles.GetOrCreate(ctx, n, ""); err != nil {
			return fmt.Errorf("ensure role %s: %w", n, err)
		}
	}
	return nil
}

func (r *Reconciler) synthesizeEmail(username string) string {
	if username == "" {
		return ""
	}
	return strings.ToLower(username) + "@" + r.policy.EmailDomain
}

// applyProfile overwrites refreshable fields with the non-empty values of p.
// Email, active flag and password are never touched.
func applyProfile(u *domain.User, p *domain.ExternalProfile) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&u.FirstName, p.FirstName)
	set(&u.LastName, p.LastName)
	set(&u.Phone, p.Phone)
	set(&u.StudentID, p.StudentID)
	set(&u.Department, p.Department)
	set(&u.Program, p.Program)
	if p.YearOfStudy > 0 {
		u.YearOfStudy = p.YearOfStudy
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
