package service

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/classroll/records-api/internal/core/domain"
)

// DefaultTokenLifetime is how long an issued token stays valid.
const DefaultTokenLifetime = 24 * time.Hour

var errEmptySecret = errors.New("token service: signing secret is empty")

// TokenConfig is built once at startup and never mutated. Changing Secret
// between deployments invalidates every outstanding token.
type TokenConfig struct {
	Secret   string
	Lifetime time.Duration
}

// TokenService issues and verifies HS256 bearer tokens. It keeps no state
// beyond its immutable configuration and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces the wall clock used for issuance and expiry checks.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg *TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, errEmptySecret
	}
	lifetime := cfg.Lifetime
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}

	s := &TokenService{
		secret:   []byte(cfg.Secret),
		lifetime: lifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	// exp is valid strictly before its instant; no leeway.
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	return s, nil
}

// Lifetime reports the validity window of issued tokens.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}

// Issue signs a token for subjectID valid from now until now+lifetime.
// Timestamps are truncated to whole seconds to match JWT NumericDate.
func (s *TokenService) Issue(subjectID int64) (string, error) {
	issuedAt := s.now().UTC().Truncate(time.Second)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(subjectID, 10),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.lifetime)),
		ID:        uuid.NewString(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature and expiry and returns the subject id. Failures are
// domain.ErrTokenMalformed, domain.ErrTokenBadSignature or domain.ErrTokenExpired.
func (s *TokenService) Verify(token string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return 0, classifyTokenError(err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrTokenMalformed
	}
	return id, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return domain.ErrTokenBadSignature
	default:
		return domain.ErrTokenMalformed
	}
}
