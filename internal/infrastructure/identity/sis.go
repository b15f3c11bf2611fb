package identity

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const (
	defaultSISLoginPath = "/api/v1/customers/login"
	defaultSISTimeout   = 5 * time.Second
)

// SISCampus names one SIS deployment and where to reach it.
type SISCampus struct {
	Name    string
	BaseURL string
}

// DefaultSISCampuses is the fixed federation order.
func DefaultSISCampuses() []SISCampus {
	return []SISCampus{
		{Name: "undergraduate", BaseURL: "https://devoap.unza.zm"},
		{Name: "postgraduate", BaseURL: "https://pgonline.unza.zm"},
		{Name: "distance", BaseURL: "https://online.unza.zm"},
		{Name: "gsb", BaseURL: "https://gsbonline.unza.zm"},
		{Name: "zou", BaseURL: "https://zouonline.unza.zm"},
		{Name: "ecampus", BaseURL: "https://ecampusonline.unza.zm"},
	}
}

// SISOptions apply to every campus instance.
type SISOptions struct {
	LoginPath string
	Timeout   time.Duration
	// CheckProfiles lets ProfileExists submit a login with an unusable
	// password. Off by default: every check counts as a failed login at
	// each campus and can lock the student's SIS account.
	CheckProfiles bool
}

// SISInstance authenticates students against a single SIS campus.
type SISInstance struct {
	campus    SISCampus
	loginPath string
	timeout   time.Duration
	check     bool
	client    *http.Client
	log       zerolog.Logger
}

func NewSISInstance(campus SISCampus, opts SISOptions, client *http.Client, log zerolog.Logger) *SISInstance {
	if opts.LoginPath == "" {
		opts.LoginPath = defaultSISLoginPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSISTimeout
	}
	return &SISInstance{
		campus:    campus,
		loginPath: opts.LoginPath,
		timeout:   opts.Timeout,
		check:     opts.CheckProfiles,
		client:    client,
		log:       log.With().Str("sis_instance", campus.Name).Logger(),
	}
}

// Name is the external system tag recorded on profiles, e.g. SIS_DISTANCE.
func (s *SISInstance) Name() string {
	return "SIS_" + strings.ToUpper(s.campus.Name)
}

func (s *SISInstance) Authenticate(ctx context.Context, identifier, secret string) (domain.AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	status, body, err := doJSON(ctx, s.client, http.MethodPost,
		strings.TrimRight(s.campus.BaseURL, "/")+s.loginPath,
		map[string]string{"username": identifier, "password": secret})
	if err != nil {
		observeCall(s.Name(), "transport_error", start)
		return domain.AuthResult{}, fmt.Errorf("%s: %w", s.Name(), err)
	}

	if isCredentialRejection(status) {
		observeCall(s.Name(), "denied", start)
		return domain.Denied(fmt.Sprintf("rejected with status %d", status)), nil
	}
	if status != http.StatusOK {
		observeCall(s.Name(), "transport_error", start)
		return domain.AuthResult{}, fmt.Errorf("%s: %w: status %d", s.Name(), domain.ErrExternalTransport, status)
	}

	reply, err := parseSISReply(body)
	if err != nil {
		observeCall(s.Name(), "transport_error", start)
		return domain.AuthResult{}, fmt.Errorf("%s: %w: %v", s.Name(), domain.ErrExternalTransport, err)
	}
	if !reply.ok {
		observeCall(s.Name(), "denied", start)
		return domain.Denied(reply.message), nil
	}

	observeCall(s.Name(), "accepted", start)
	return domain.Accepted(reply.profile(identifier, s.Name())), nil
}

const sisLookupSecret = "\x00profile-lookup"

// ProfileExists has no dedicated endpoint to call, so it submits a login
// with an unusable password and treats any answer other than "not found" as
// the student existing. That attempt counts against the SIS lockout policy,
// so it only runs when CheckProfiles is set and reports false otherwise.
func (s *SISInstance) ProfileExists(ctx context.Context, identifier string) bool {
	if !s.check {
		s.log.Debug().Str("identifier", identifier).Msg("sis profile check disabled")
		return false
	}
	res, err := s.Authenticate(ctx, identifier, sisLookupSecret)
	if err != nil {
		return false
	}
	if res.Success {
		return true
	}
	msg := strings.ToLower(res.Message)
	return !strings.Contains(msg, "not found") &&
		!strings.Contains(msg, "does not exist") &&
		!strings.HasPrefix(msg, "rejected with status")
}

// FetchProfile is unsupported: SIS only returns profiles on login.
func (s *SISInstance) FetchProfile(_ context.Context, identifier string) (*domain.ExternalProfile, error) {
	return nil, fmt.Errorf("%s: %w: no profile lookup for %q", s.Name(), domain.ErrProfileUnavailable, identifier)
}
