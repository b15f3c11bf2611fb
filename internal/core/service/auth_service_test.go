package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unza/counseling-identity/internal/core/domain"
	"github.com/unza/counseling-identity/internal/core/ports"
	"github.com/unza/counseling-identity/internal/infrastructure/db/memory"
	"github.com/unza/counseling-identity/internal/infrastructure/identity"
)

// fakeSource is a scripted identity source. Calls are appended to a shared
// log so tests can assert the order sources were consulted in.
type fakeSource struct {
	name   string
	result domain.AuthResult
	err    error
	calls  *[]string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Authenticate(_ context.Context, _, _ string) (domain.AuthResult, error) {
	if f.calls != nil {
		*f.calls = append(*f.calls, f.name)
	}
	return f.result, f.err
}

func (f *fakeSource) ProfileExists(context.Context, string) bool { return f.result.Success }

func (f *fakeSource) FetchProfile(context.Context, string) (*domain.ExternalProfile, error) {
	return nil, domain.ErrProfileUnavailable
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.LoginEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.LoginEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

type authFixture struct {
	svc      *AuthService
	admin    *AdminService
	users    *memory.UserRepository
	tokens   *TokenService
	sis      *fakeSource
	hr       *fakeSource
	calls    []string
	notifier *recordingNotifier
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	f := &authFixture{
		users:    memory.NewUserRepository(),
		notifier: &recordingNotifier{},
	}
	roles := memory.NewRoleRepository()
	f.sis = &fakeSource{name: "SIS", result: domain.Denied("invalid credentials or not found"), calls: &f.calls}
	f.hr = &fakeSource{name: "HR", result: domain.Denied("invalid hr credentials"), calls: &f.calls}

	internal, err := identity.NewInternal(f.users, zerolog.Nop())
	require.NoError(t, err)
	f.tokens = newTestTokenService(t, time.Now())
	rec := NewReconciler(f.users, roles, ProvisioningPolicy{}, zerolog.Nop())
	catalog := NewRoleCatalog(roles, time.Minute, zerolog.Nop())

	f.svc = NewAuthService(AuthDependencies{
		Users:      f.users,
		Internal:   internal,
		SIS:        f.sis,
		HR:         f.hr,
		Reconciler: rec,
		Tokens:     f.tokens,
		Catalog:    catalog,
		Notifier:   f.notifier,
	}, LoginPolicy{
		Timeout:            5 * time.Second,
		InternalIdentities: []string{" Admin@UNZA.zm "},
		StaffEmailDomain:   "@unza.zm",
		ReservedIdentities: []string{"Admin"},
	}, zerolog.Nop())
	f.admin = NewAdminService(f.users, roles, rec, []ports.IdentitySource{internal, f.sis, f.hr}, zerolog.Nop())
	return f
}

func (f *authFixture) seedHRUser(t *testing.T, active bool) *domain.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), &domain.User{
		Username: "MAN001", Email: "j.phiri@unza.zm", FirstName: "Joseph", LastName: "Phiri",
		PasswordHash: domain.LockedPassword, AuthenticationSource: domain.SourceHR,
		Active: active, Roles: []domain.RoleName{domain.RoleCounselor},
	})
	require.NoError(t, err)
	return u
}

func TestLogin_BootstrappedAdmin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.admin.Bootstrap(ctx, ports.CreateUserInput{Username: "admin", Email: "admin@unza.zm", Password: "s3cret-pass"})
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "admin@unza.zm", "s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, res.Principal.Authorities, "ADMIN")
	assert.Contains(t, res.Principal.Authorities, "SUPER_ADMIN")
	assert.Contains(t, res.Principal.Authorities, string(domain.PermUserAdmin))
	assert.True(t, f.tokens.Validate(res.Tokens.AccessToken, res.Principal))
	assert.Empty(t, f.calls, "internal identities never reach external sources")

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, domain.SourceInternal, f.notifier.events[0].Source)
}

func TestLogin_InternalUserByUsername(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.admin.CreateUser(ctx, ports.CreateUserInput{Username: "mchanda", Email: "m.chanda@example.com", Password: "pa55word!"})
	require.NoError(t, err)

	res, err := f.svc.Login(ctx, "mchanda", "pa55word!")
	require.NoError(t, err)
	assert.Equal(t, "m.chanda@example.com", res.User.Email)
	assert.NotNil(t, res.User.LastLoginAt)
}

func TestLogin_InternalWrongPasswordDoesNotFallThrough(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.admin.Bootstrap(ctx, ports.CreateUserInput{Username: "admin", Email: "admin@unza.zm", Password: "s3cret-pass"})
	require.NoError(t, err)
	f.sis.result = domain.Accepted(sisProfile())

	_, err = f.svc.Login(ctx, "admin@unza.zm", "wrong")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Empty(t, f.calls)
}

func TestLogin_SISStudentIsProvisioned(t *testing.T) {
	f := newAuthFixture(t)
	f.sis.result = domain.Accepted(sisProfile())

	res, err := f.svc.Login(context.Background(), "2021001234", "student-pass")
	require.NoError(t, err)
	assert.Equal(t, []string{"SIS"}, f.calls)
	assert.Equal(t, domain.SourceSIS, res.User.AuthenticationSource)
	assert.Equal(t, []domain.RoleName{domain.RoleStudent}, res.User.Roles)
	assert.Equal(t, "2021001234@unza.zm", res.User.Email)
	assert.Equal(t, "2021001234@unza.zm", f.tokens.ExtractSubject(res.Tokens.AccessToken))
	assert.False(t, res.Degraded)

	require.Len(t, f.notifier.events, 1)
	ev := f.notifier.events[0]
	assert.True(t, ev.Provisioned)
	assert.Equal(t, "SIS_DISTANCE", ev.ExternalSystem)

	// A second login reuses the account.
	again, err := f.svc.Login(context.Background(), "2021001234", "student-pass")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, again.User.ID)
	assert.Equal(t, 1, f.users.Len())
}

func TestLogin_FallsThroughToHR(t *testing.T) {
	f := newAuthFixture(t)
	f.hr.result = domain.Accepted(&domain.ExternalProfile{
		ExternalID: "MAN001", ExternalSystem: "HR", Source: domain.SourceHR,
		Username: "MAN001", Email: "j.phiri@unza.zm", FirstName: "Joseph", LastName: "Phiri",
	})

	res, err := f.svc.Login(context.Background(), "MAN001", "staff-pass")
	require.NoError(t, err)
	assert.Equal(t, []string{"SIS", "HR"}, f.calls)
	assert.Equal(t, domain.SourceHR, res.User.AuthenticationSource)
	assert.Equal(t, []domain.RoleName{domain.RoleCounselor}, res.User.Roles)
}

func TestLogin_StaffTriesHRFirst(t *testing.T) {
	f := newAuthFixture(t)

	_, err := f.svc.Login(context.Background(), "someone@unza.zm", "pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, []string{"HR", "SIS"}, f.calls)

	f.calls = nil
	f.seedHRUser(t, true)
	_, err = f.svc.Login(context.Background(), "MAN001", "pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, []string{"HR", "SIS"}, f.calls)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	f.hr.err = fmt.Errorf("HR login: %w: status 502", domain.ErrExternalTransport)
	f.hr.result = domain.AuthResult{}

	_, err := f.svc.Login(context.Background(), "nobody", "pass")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	assert.Equal(t, domain.ErrInvalidCredentials.Error(), err.Error())
	assert.Empty(t, f.notifier.events)
}

func TestLogin_BlankCredentials(t *testing.T) {
	f := newAuthFixture(t)
	for _, tc := range []struct{ id, secret string }{{"", "x"}, {"  ", "x"}, {"user", ""}} {
		_, err := f.svc.Login(context.Background(), tc.id, tc.secret)
		assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	}
	assert.Empty(t, f.calls)
}

func TestLogin_DegradedHRWithStoredProfile(t *testing.T) {
	f := newAuthFixture(t)
	seeded := f.seedHRUser(t, true)
	f.hr.result = domain.AuthResult{}
	f.hr.err = fmt.Errorf("HR: %w: metadata status 500", domain.ErrProfileUnavailable)

	res, err := f.svc.Login(context.Background(), "MAN001", "staff-pass")
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, seeded.ID, res.User.ID)
	assert.Equal(t, "Joseph", res.User.FirstName)
	assert.Equal(t, []string{"HR"}, f.calls)
	require.Len(t, f.notifier.events, 1)
	assert.True(t, f.notifier.events[0].Degraded)
}

func TestLogin_ProfileUnavailableWithoutStoredProfile(t *testing.T) {
	f := newAuthFixture(t)
	f.hr.result = domain.AuthResult{}
	f.hr.err = fmt.Errorf("HR: %w", domain.ErrProfileUnavailable)

	_, err := f.svc.Login(context.Background(), "MAN999", "staff-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_DisabledExternalAccount(t *testing.T) {
	f := newAuthFixture(t)
	f.seedHRUser(t, false)
	f.hr.result = domain.Accepted(&domain.ExternalProfile{
		ExternalID: "MAN001", ExternalSystem: "HR", Source: domain.SourceHR, Username: "MAN001", Email: "j.phiri@unza.zm",
	})

	_, err := f.svc.Login(context.Background(), "MAN001", "staff-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Empty(t, f.notifier.events)
}

func TestRefresh(t *testing.T) {
	f := newAuthFixture(t)
	f.sis.result = domain.Accepted(sisProfile())
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "2021001234", "student-pass")
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, refreshed.User.ID)
	assert.NotEmpty(t, refreshed.Tokens.AccessToken)

	_, err = f.svc.Refresh(ctx, res.Tokens.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials, "an access token cannot be used to refresh")

	_, err = f.svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRefresh_DeactivatedUser(t *testing.T) {
	f := newAuthFixture(t)
	f.sis.result = domain.Accepted(sisProfile())
	ctx := context.Background()

	res, err := f.svc.Login(ctx, "2021001234", "student-pass")
	require.NoError(t, err)
	_, err = f.admin.Deactivate(ctx, res.User.Email)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestRegister(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, ports.RegisterInput{
		Username: "client1", Email: "Client1@Example.com", Password: "pa55word!", FirstName: "Ann", LastName: "Tembo",
	})
	require.NoError(t, err)
	assert.Equal(t, "client1@example.com", u.Email)
	assert.Equal(t, []domain.RoleName{domain.RoleClient}, u.Roles)
	assert.Equal(t, domain.SourceInternal, u.AuthenticationSource)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("pa55word!")))

	_, err = f.svc.Register(ctx, ports.RegisterInput{Username: "client2", Email: "client1@example.com", Password: "pa55word!"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	_, err = f.svc.Register(ctx, ports.RegisterInput{Username: "boss", Email: "boss@example.com", Password: "pa55word!", Role: domain.RoleAdmin})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestRegister_AccountIsUnverified(t *testing.T) {
	f := newAuthFixture(t)

	u, err := f.svc.Register(context.Background(), ports.RegisterInput{Username: "client1", Email: "client1@example.com", Password: "pa55word!"})
	require.NoError(t, err)
	assert.False(t, u.EmailVerified)

	created, err := f.admin.CreateUser(context.Background(), ports.CreateUserInput{Username: "mchanda", Email: "m.chanda@example.com", Password: "pa55word!"})
	require.NoError(t, err)
	assert.True(t, created.EmailVerified)
}

func TestRegister_RejectsReservedIdentifiers(t *testing.T) {
	cases := []struct {
		name     string
		username string
		email    string
	}{
		{"student email", "mallory", "2019001@student.unza.zm"},
		{"staff email", "mallory", "j.phiri@unza.zm"},
		{"staff email mixed case", "mallory", " J.Phiri@UNZA.zm "},
		{"internal identity email", "mallory", "admin@unza.zm"},
		{"reserved username", "ADMIN", "admin@example.com"},
		{"student number username", "2019002", "someone@example.com"},
		{"man number username", "man042", "someone@example.com"},
		{"man number with separator", "MAN-042", "someone@example.com"},
		{"email as username", "2019002@student.unza.zm", "someone@example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newAuthFixture(t)

			_, err := f.svc.Register(context.Background(), ports.RegisterInput{Username: tc.username, Email: tc.email, Password: "pa55word!"})
			assert.ErrorIs(t, err, domain.ErrReservedIdentity)
			assert.Zero(t, f.users.Len())
		})
	}
}

func TestRegister_NonInstitutionalLookalikesAreAllowed(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, ports.RegisterInput{Username: "manda", Email: "manda@notunza.zm", Password: "pa55word!"})
	assert.NoError(t, err)
	_, err = f.svc.Register(ctx, ports.RegisterInput{Username: "client42", Email: "client42@example.com", Password: "pa55word!"})
	assert.NoError(t, err)
}

func TestLogin_SISProfileNotMergedIntoUnverifiedAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	// Accounts self-registered before institutional emails were reserved.
	seeded, err := f.users.Create(ctx, &domain.User{
		Username: "mallory", Email: "2021001234@unza.zm", PasswordHash: "$2a$10$hash",
		AuthenticationSource: domain.SourceInternal, Active: true, Roles: []domain.RoleName{domain.RoleClient},
	})
	require.NoError(t, err)
	f.sis.result = domain.Accepted(sisProfile())

	_, err = f.svc.Login(ctx, "2021001234", "student-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Equal(t, []string{"SIS"}, f.calls)
	assert.Empty(t, f.notifier.events)

	stored, err := f.users.FindByEmail(ctx, "2021001234@unza.zm")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, stored.ID)
	assert.Equal(t, []domain.RoleName{domain.RoleClient}, stored.Roles)
	assert.Empty(t, stored.StudentID)
}

func TestLogin_StudentNumberCannotBeSquatted(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.sis.result = domain.Accepted(sisProfile())

	_, err := f.svc.Register(ctx, ports.RegisterInput{Username: "2021001234", Email: "squatter@example.com", Password: "pa55word!"})
	require.ErrorIs(t, err, domain.ErrReservedIdentity)

	res, err := f.svc.Login(ctx, "2021001234", "student-pass")
	require.NoError(t, err)
	assert.Equal(t, []string{"SIS"}, f.calls)
	assert.Equal(t, domain.SourceSIS, res.User.AuthenticationSource)
}
