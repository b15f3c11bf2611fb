package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const (
	hrSystem             = "HR"
	defaultHRBaseURL     = "https://hr.unza.zm"
	defaultHRLoginPath   = "/api/auth-login2"
	defaultHRMetaPath    = "/api/get-meta-data-on-user"
	defaultHRStaffPath   = "/staff"
	defaultHRCallTimeout = 10 * time.Second
)

// HRConfig locates the HR system endpoints.
type HRConfig struct {
	BaseURL      string
	LoginPath    string
	MetadataPath string
	StaffPath    string
	Timeout      time.Duration
}

// HR authenticates staff in two steps: a credential exchange that yields a
// bearer token, then a metadata call that yields the staff profile.
type HR struct {
	cfg    HRConfig
	client *http.Client
	log    zerolog.Logger
}

func NewHR(cfg HRConfig, client *http.Client, log zerolog.Logger) *HR {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultHRBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.LoginPath == "" {
		cfg.LoginPath = defaultHRLoginPath
	}
	if cfg.MetadataPath == "" {
		cfg.MetadataPath = defaultHRMetaPath
	}
	if cfg.StaffPath == "" {
		cfg.StaffPath = defaultHRStaffPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHRCallTimeout
	}
	return &HR{cfg: cfg, client: client, log: log.With().Str("identity_source", hrSystem).Logger()}
}

func (h *HR) Name() string { return hrSystem }

type hrLoginResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
}

type hrStaff struct {
	ManNumber  string `json:"man_number"`
	Title      string `json:"title"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	OtherNames string `json:"other_names"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Position   string `json:"position"`
}

type hrMetadataResponse struct {
	Response struct {
		Status  int      `json:"status"`
		Message string   `json:"message"`
		Data    *hrStaff `json:"data"`
	} `json:"response"`
}

// Authenticate returns a negative result when HR rejects the credentials,
// wraps domain.ErrExternalTransport when step one cannot complete, and wraps
// domain.ErrProfileUnavailable when step two fails after a valid login.
func (h *HR) Authenticate(ctx context.Context, identifier, secret string) (domain.AuthResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	start := time.Now()
	token, res, err := h.login(ctx, identifier, secret)
	if err != nil {
		observeCall(hrSystem, "transport_error", start)
		return domain.AuthResult{}, err
	}
	if token == nil {
		observeCall(hrSystem, "denied", start)
		return res, nil
	}

	staff, err := h.metadata(ctx, token)
	if err != nil {
		observeCall(hrSystem, "profile_unavailable", start)
		return domain.AuthResult{}, fmt.Errorf("%s: %w: %v", hrSystem, domain.ErrProfileUnavailable, err)
	}

	observeCall(hrSystem, "accepted", start)
	return domain.Accepted(staff.profile()), nil
}

func (h *HR) login(ctx context.Context, identifier, secret string) (*oauth2.Token, domain.AuthResult, error) {
	status, body, err := doJSON(ctx, h.client, http.MethodPost, h.cfg.BaseURL+h.cfg.LoginPath,
		map[string]string{"username": identifier, "password": secret})
	if err != nil {
		return nil, domain.AuthResult{}, fmt.Errorf("%s login: %w", hrSystem, err)
	}
	if isCredentialRejection(status) {
		return nil, domain.Denied("invalid hr credentials"), nil
	}
	if status != http.StatusOK {
		return nil, domain.AuthResult{}, fmt.Errorf("%s login: %w: status %d", hrSystem, domain.ErrExternalTransport, status)
	}

	var lr hrLoginResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, domain.AuthResult{}, fmt.Errorf("%s login: %w: %v", hrSystem, domain.ErrExternalTransport, err)
	}
	if lr.Token == "" {
		msg := lr.Message
		if msg == "" {
			msg = "invalid hr credentials"
		}
		return nil, domain.Denied(msg), nil
	}

	tok := &oauth2.Token{AccessToken: lr.Token, TokenType: lr.TokenType}
	if lr.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second)
	}
	return tok, domain.AuthResult{}, nil
}

// metadata calls the profile endpoint with the step-one token attached.
func (h *HR) metadata(ctx context.Context, token *oauth2.Token) (*hrStaff, error) {
	authed := oauth2.NewClient(context.WithValue(ctx, oauth2.HTTPClient, h.client), oauth2.StaticTokenSource(token))

	status, body, err := doJSON(ctx, authed, http.MethodPost, h.cfg.BaseURL+h.cfg.MetadataPath, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("metadata status %d", status)
	}
	return decodeStaff(body)
}

func decodeStaff(body []byte) (*hrStaff, error) {
	var mr hrMetadataResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if mr.Response.Data == nil || strings.TrimSpace(mr.Response.Data.ManNumber) == "" {
		return nil, fmt.Errorf("metadata has no staff record")
	}
	return mr.Response.Data, nil
}

func (s *hrStaff) profile() *domain.ExternalProfile {
	man := strings.TrimSpace(s.ManNumber)
	return &domain.ExternalProfile{
		ExternalID:     man,
		ExternalSystem: hrSystem,
		Source:         domain.SourceHR,
		Username:       man,
		FirstName:      strings.TrimSpace(s.FirstName),
		LastName:       strings.TrimSpace(s.LastName),
		Email:          strings.TrimSpace(s.Email),
		Phone:          strings.TrimSpace(s.Phone),
		Department:     strings.TrimSpace(s.Position),
	}
}

func (h *HR) staffURL(identifier string) string {
	return h.cfg.BaseURL + h.cfg.StaffPath + "/" + url.PathEscape(identifier)
}

// ProfileExists is best-effort: any failure reads as "unknown".
func (h *HR) ProfileExists(ctx context.Context, identifier string) bool {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	status, _, err := doJSON(ctx, h.client, http.MethodGet, h.staffURL(identifier), nil)
	if err != nil {
		h.log.Debug().Err(err).Str("identifier", identifier).Msg("hr staff lookup failed")
		return false
	}
	return status == http.StatusOK
}

func (h *HR) FetchProfile(ctx context.Context, identifier string) (*domain.ExternalProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.Timeout)
	defer cancel()

	status, body, err := doJSON(ctx, h.client, http.MethodGet, h.staffURL(identifier), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", hrSystem, domain.ErrProfileUnavailable, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: status %d", hrSystem, domain.ErrProfileUnavailable, status)
	}
	staff, err := decodeStaff(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", hrSystem, domain.ErrProfileUnavailable, err)
	}
	return staff.profile(), nil
}
