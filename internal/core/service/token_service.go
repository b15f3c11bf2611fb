package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unza/counseling-identity/internal/core/domain"
)

const (
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig holds the signing key and lifetimes for issued tokens.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Issuer     string
	// Leeway tolerates clock skew when checking exp, nbf and iat.
	Leeway time.Duration
}

type tokenClaims struct {
	TokenType domain.TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens whose subject is the
// user's email.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	leeway     time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewTokenService(cfg TokenConfig, log zerolog.Logger) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token service: signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = defaultRefreshTTL
	}
	if len(cfg.Secret) < 32 {
		log.Warn().Int("length", len(cfg.Secret)).Msg("jwt secret is shorter than 32 bytes")
	}
	return &TokenService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		leeway:     cfg.Leeway,
		now:        time.Now,
		log:        log,
	}, nil
}

// Issue signs a fresh access and refresh token for subject.
func (s *TokenService) Issue(subject string) (*domain.TokenPair, error) {
	if subject == "" {
		return nil, fmt.Errorf("issue token: %w", domain.ErrInvalidInput)
	}
	now := s.now()

	access, err := s.sign(subject, domain.TokenAccess, now, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(subject, domain.TokenRefresh, now, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

func (s *TokenService) sign(subject string, typ domain.TokenType, now time.Time, ttl time.Duration) (string, error) {
	claims := tokenClaims{
		TokenType: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}

// Verify checks signature, validity window, type and subject of token and
// returns the specific reason it is not acceptable.
func (s *TokenService) Verify(token string, principal *domain.Principal, typ domain.TokenType) error {
	opts := []jwt.ParserOption{jwt.WithLeeway(s.leeway), jwt.WithIssuedAt()}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims, err := s.parse(token, opts...)
	if err != nil {
		return err
	}
	if claims.TokenType != typ {
		return domain.ErrTokenWrongType
	}
	if principal == nil || principal.Subject() == "" || claims.Subject != principal.Subject() {
		return domain.ErrTokenSubjectMismatch
	}
	return nil
}

// Validate reports whether token is a usable access token for principal.
// The failure reason is logged, never returned.
func (s *TokenService) Validate(token string, principal *domain.Principal) bool {
	err := s.Verify(token, principal, domain.TokenAccess)
	if err == nil {
		return true
	}

	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		s.log.Debug().Str("subject", principal.Subject()).Msg("token expired")
	case errors.Is(err, domain.ErrTokenSignatureInvalid):
		s.log.Warn().Msg("token signature invalid")
	case errors.Is(err, domain.ErrTokenMalformed):
		s.log.Warn().Msg("token malformed")
	default:
		s.log.Warn().Err(err).Str("subject", principal.Subject()).Msg("token rejected")
	}
	return false
}

// ExtractSubject returns the subject of a correctly signed token, or "" when
// the token is malformed or forged. Expiry is not checked so expired tokens
// still identify who presented them.
func (s *TokenService) ExtractSubject(token string) string {
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return ""
	}
	return claims.Subject
}

func (s *TokenService) parse(token string, opts ...jwt.ParserOption) (*tokenClaims, error) {
	if token == "" {
		return nil, domain.ErrTokenMalformed
	}

	opts = append(opts,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return domain.ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenMalformed):
		return domain.ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenExpired),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return domain.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}
}
