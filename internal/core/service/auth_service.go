package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/api/metrics"
	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
)

const defaultLoginTimeout = 20 * time.Second

// LoginPolicy controls how a login is routed across identity sources.
type LoginPolicy struct {
	// Timeout bounds the whole login, including every external call.
	Timeout time.Duration
	// InternalIdentities always authenticate against the local store only.
	InternalIdentities []string
	// StaffEmailDomain marks identifiers that should try HR before SIS.
	StaffEmailDomain string
	// ReservedIdentities cannot be claimed through self-registration, in
	// addition to InternalIdentities. Usually the bootstrap admin email and
	// username.
	ReservedIdentities []string
	// ReservedEmailDomains are institutional domains whose addresses only
	// come from SIS, HR or an administrator. StaffEmailDomain is always
	// included.
	ReservedEmailDomains []string
}

// AuthDependencies wires the orchestrator to its collaborators.
type AuthDependencies struct {
	Users      ports.UserRepository
	Internal   ports.IdentitySource
	SIS        ports.IdentitySource
	HR         ports.IdentitySource
	Reconciler *Reconciler
	Tokens     ports.TokenService
	Catalog    ports.RoleCatalog
	Notifier   ports.LoginNotifier
}

// AuthService orchestrates login across the internal store, the SIS
// federation and HR, and issues session tokens.
type AuthService struct {
	deps   AuthDependencies
	policy LoginPolicy
	now    func() time.Time
	log    zerolog.Logger
}

func NewAuthService(deps AuthDependencies, policy LoginPolicy, log zerolog.Logger) *AuthService {
	if policy.Timeout <= 0 {
		policy.Timeout = defaultLoginTimeout
	}
	policy.InternalIdentities = normalizeIdentities(policy.InternalIdentities)
	policy.ReservedIdentities = normalizeIdentities(policy.ReservedIdentities)
	policy.StaffEmailDomain = normalizeDomain(policy.StaffEmailDomain)

	domains := make([]string, 0, len(policy.ReservedEmailDomains)+1)
	for _, d := range slices.Concat(policy.ReservedEmailDomains, []string{policy.StaffEmailDomain}) {
		if d = normalizeDomain(d); d != "" && !slices.Contains(domains, d) {
			domains = append(domains, d)
		}
	}
	policy.ReservedEmailDomains = domains
	return &AuthService{deps: deps, policy: policy, now: time.Now, log: log}
}

// Login authenticates identifier/secret against the first identity source
// that accepts it. Every failure is reported as domain.ErrInvalidCredentials;
// the reason is only logged.
func (s *AuthService) Login(ctx context.Context, identifier, secret string) (*ports.LoginResult, error) {
	start := s.now()
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		s.recordLogin("none", "denied", start)
		return nil, domain.ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.policy.Timeout)
	defer cancel()

	local, err := s.findLocal(ctx, identifier)
	if err != nil {
		s.recordLogin("none", "error", start)
		return nil, err
	}

	if s.isInternalIdentity(identifier) || (local != nil && local.AuthenticationSource == domain.SourceInternal) {
		return s.loginInternal(ctx, identifier, secret, local, start)
	}
	return s.loginExternal(ctx, identifier, secret, local, start)
}

func (s *AuthService) loginInternal(ctx context.Context, identifier, secret string, local *domain.User, start time.Time) (*ports.LoginResult, error) {
	res, err := s.deps.Internal.Authenticate(ctx, identifier, secret)
	if err != nil {
		s.recordLogin(string(domain.SourceInternal), "error", start)
		return nil, fmt.Errorf("internal authentication: %w", err)
	}
	if !res.Success || local == nil {
		s.log.Info().Str("identifier", identifier).Str("reason", res.Message).Msg("internal login denied")
		s.recordLogin(string(domain.SourceInternal), "denied", start)
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.deps.Reconciler.TouchLogin(ctx, local)
	if err != nil {
		s.recordLogin(string(domain.SourceInternal), "error", start)
		return nil, err
	}
	return s.complete(ctx, user, loginOutcome{source: domain.SourceInternal}, start)
}

func (s *AuthService) loginExternal(ctx context.Context, identifier, secret string, local *domain.User, start time.Time) (*ports.LoginResult, error) {
	for _, src := range s.externalChain(identifier, local) {
		if ctx.Err() != nil {
			s.log.Warn().Str("identifier", identifier).Msg("login timed out before every source answered")
			break
		}

		res, err := src.Authenticate(ctx, identifier, secret)
		switch {
		case err == nil && res.Success:
			user, created, err := s.deps.Reconciler.Reconcile(ctx, res.Profile)
			if errors.Is(err, domain.ErrAccountDisabled) {
				s.log.Warn().Str("identifier", identifier).Str("source", src.Name()).Msg("external login for disabled account")
				s.recordLogin(string(res.Profile.Source), "denied", start)
				return nil, domain.ErrInvalidCredentials
			}
			if errors.Is(err, domain.ErrIdentityConflict) {
				s.log.Warn().Str("identifier", identifier).Str("source", src.Name()).Msg("external login collides with an unverified local account")
				s.recordLogin(string(res.Profile.Source), "denied", start)
				return nil, domain.ErrInvalidCredentials
			}
			if err != nil {
				s.recordLogin(string(res.Profile.Source), "error", start)
				return nil, err
			}
			return s.complete(ctx, user, loginOutcome{
				source:      res.Profile.Source,
				system:      res.Profile.ExternalSystem,
				provisioned: created,
			}, start)

		case errors.Is(err, domain.ErrProfileUnavailable):
			// Only HR authenticates in two steps, so only an existing HR
			// account can stand in for the missing profile.
			if local != nil && local.Active && local.AuthenticationSource == domain.SourceHR {
				s.log.Warn().
					Err(err).
					Str("identifier", identifier).
					Str("user_id", local.ID).
					Msg("hr profile unavailable, logging in with stored profile")
				user, err := s.deps.Reconciler.TouchLogin(ctx, local)
				if err != nil {
					s.recordLogin(string(domain.SourceHR), "error", start)
					return nil, err
				}
				return s.complete(ctx, user, loginOutcome{source: domain.SourceHR, system: "HR", degraded: true}, start)
			}
			s.log.Warn().Err(err).Str("identifier", identifier).Msg("hr profile unavailable and no local account to fall back on")

		case err != nil:
			s.log.Warn().Err(err).Str("identifier", identifier).Str("source", src.Name()).Msg("identity source failed")

		default:
			s.log.Debug().Str("identifier", identifier).Str("source", src.Name()).Str("reason", res.Message).Msg("identity source declined")
		}
	}

	s.log.Info().Str("identifier", identifier).Msg("login denied by every identity source")
	s.recordLogin("none", "denied", start)
	return nil, domain.ErrInvalidCredentials
}

// externalChain orders the external sources for identifier. Known HR staff
// and staff-domain emails try HR first; everyone else tries SIS first.
func (s *AuthService) externalChain(identifier string, local *domain.User) []ports.IdentitySource {
	staff := local != nil && local.AuthenticationSource == domain.SourceHR
	if !staff && s.policy.StaffEmailDomain != "" {
		staff = strings.HasSuffix(strings.ToLower(identifier), "@"+s.policy.StaffEmailDomain)
	}

	chain := make([]ports.IdentitySource, 0, 2)
	if staff {
		chain = appendSource(chain, s.deps.HR, s.deps.SIS)
	} else {
		chain = appendSource(chain, s.deps.SIS, s.deps.HR)
	}
	return chain
}

func appendSource(chain []ports.IdentitySource, srcs ...ports.IdentitySource) []ports.IdentitySource {
	for _, src := range srcs {
		if src != nil {
			chain = append(chain, src)
		}
	}
	return chain
}

type loginOutcome struct {
	source      domain.AuthenticationSource
	system      string
	provisioned bool
	degraded    bool
}

func (s *AuthService) complete(ctx context.Context, user *domain.User, out loginOutcome, start time.Time) (*ports.LoginResult, error) {
	tokens, err := s.deps.Tokens.Issue(user.Email)
	if err != nil {
		s.recordLogin(string(out.source), "error", start)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	principal := &domain.Principal{User: user, Authorities: s.deps.Catalog.Authorities(ctx, user.Roles)}

	outcome := "success"
	if out.degraded {
		outcome = "degraded"
	}
	s.recordLogin(string(out.source), outcome, start)

	s.notify(ctx, domain.LoginEvent{
		Subject:        user.Email,
		UserID:         user.ID,
		Source:         out.source,
		ExternalSystem: out.system,
		Provisioned:    out.provisioned,
		Degraded:       out.degraded,
		At:             s.now().UTC(),
	})

	s.log.Info().
		Str("user_id", user.ID).
		Str("source", string(out.source)).
		Str("external_system", out.system).
		Bool("provisioned", out.provisioned).
		Bool("degraded", out.degraded).
		Msg("login succeeded")

	return &ports.LoginResult{Tokens: tokens, User: user, Principal: principal, Degraded: out.degraded}, nil
}

// Refresh trades a valid refresh token for a new token pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*ports.LoginResult, error) {
	subject := s.deps.Tokens.ExtractSubject(refreshToken)
	if subject == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.deps.Users.FindByEmail(ctx, subject)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if !user.Active {
		return nil, domain.ErrInvalidCredentials
	}

	principal := &domain.Principal{User: user, Authorities: s.deps.Catalog.Authorities(ctx, user.Roles)}
	if err := s.deps.Tokens.Verify(refreshToken, principal, domain.TokenRefresh); err != nil {
		s.log.Debug().Err(err).Str("subject", subject).Msg("refresh token rejected")
		return nil, domain.ErrInvalidCredentials
	}

	tokens, err := s.deps.Tokens.Issue(user.Email)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	return &ports.LoginResult{Tokens: tokens, User: user, Principal: principal}, nil
}

var selfServiceRoles = []domain.RoleName{domain.RoleStudent, domain.RoleClient}

// institutionalUsername matches student numbers and HR man numbers, which SIS
// and HR own even before their holder first logs in.
var institutionalUsername = regexp.MustCompile(`(?i)^(\d+|man[-_]?\d+)$`)

// Register creates an unverified internal account through self-service. Only
// the student and client roles can be requested this way.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.User, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleClient
	}
	if !slices.Contains(selfServiceRoles, role) {
		return nil, fmt.Errorf("%w: %s cannot be self-assigned", domain.ErrInvalidRole, role)
	}
	if err := s.checkRegistrable(in.Username, in.Email); err != nil {
		s.log.Warn().
			Err(err).
			Str("username", in.Username).
			Str("email", in.Email).
			Msg("self-registration refused")
		return nil, err
	}

	return createInternalUser(ctx, s.deps.Users, s.deps.Reconciler, ports.CreateUserInput{
		Username:  in.Username,
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Roles:     []domain.RoleName{role},
	}, false, s.now().UTC())
}

// checkRegistrable rejects identifiers that an identity source or the
// administrator already owns.
func (s *AuthService) checkRegistrable(username, email string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	email = normalizeEmail(email)

	for _, id := range []string{username, email} {
		if id != "" && (s.isInternalIdentity(id) || slices.Contains(s.policy.ReservedIdentities, id)) {
			return fmt.Errorf("%w: %q", domain.ErrReservedIdentity, id)
		}
	}
	if strings.Contains(username, "@") || institutionalUsername.MatchString(username) {
		return fmt.Errorf("%w: username %q", domain.ErrReservedIdentity, username)
	}

	_, host, ok := strings.Cut(email, "@")
	if !ok {
		return nil
	}
	for _, d := range s.policy.ReservedEmailDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return fmt.Errorf("%w: email domain %q", domain.ErrReservedIdentity, host)
		}
	}
	return nil
}

// findLocal looks identifier up by email, then by username.
func (s *AuthService) findLocal(ctx context.Context, identifier string) (*domain.User, error) {
	if strings.Contains(identifier, "@") {
		u, err := s.deps.Users.FindByEmail(ctx, strings.ToLower(identifier))
		if err == nil {
			return u, nil
		}
		if !errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("find local user: %w", err)
		}
	}
	u, err := s.deps.Users.FindByUsername(ctx, identifier)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find local user: %w", err)
	}
	return u, nil
}

func (s *AuthService) isInternalIdentity(identifier string) bool {
	return slices.Contains(s.policy.InternalIdentities, strings.ToLower(identifier))
}

func normalizeIdentities(in []string) []string {
	out := make([]string, 0, len(in))
	for _, id := range in {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
}

func (s *AuthService) notify(ctx context.Context, ev domain.LoginEvent) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn().Err(err).Str("subject", ev.Subject).Msg("login notification failed")
	}
}

func (s *AuthService) recordLogin(source, outcome string, start time.Time) {
	metrics.LoginAttemptsTotal.WithLabelValues(source, outcome).Inc()
	metrics.LoginDuration.WithLabelValues(outcome).Observe(s.now().Sub(start).Seconds())
}
