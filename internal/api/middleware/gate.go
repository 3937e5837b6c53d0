package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/classroll/records-api/internal/api/metrics"
	"github.com/classroll/records-api/internal/core/domain"
	"github.com/classroll/records-api/internal/core/ports"
)

// HandlerFunc is a protected handler. It receives the admitted identity as an
// argument instead of digging it out of the echo context.
type HandlerFunc func(c echo.Context, id domain.Identity) error

// Authorizer resolves identities and decides capability checks.
type Authorizer interface {
	Authorize(ctx context.Context, identity domain.Identity, capability string) (bool, error)
	Resolve(ctx context.Context, user *domain.User) (domain.Identity, error)
}

// Gate admits or denies requests in four ordered stages: bearer extraction,
// token verification, identity resolution and, when a capability is
// required, authorization. The first failing stage ends the check.
type Gate struct {
	tokens ports.TokenVerifier
	store  ports.CredentialStore
	authz  Authorizer
	log    zerolog.Logger
}

func NewGate(tokens ports.TokenVerifier, store ports.CredentialStore, authz Authorizer, log zerolog.Logger) *Gate {
	return &Gate{tokens: tokens, store: store, authz: authz, log: log}
}

// Check runs the pipeline against an Authorization header value. An empty
// capability admits any authenticated identity. Denials are *domain.Denial;
// any other error is a store fault.
func (g *Gate) Check(ctx context.Context, header, capability string) (domain.Identity, error) {
	start := time.Now()
	defer func() { metrics.GateDuration.Observe(time.Since(start).Seconds()) }()

	token, denial := extractBearer(header)
	if denial != nil {
		return domain.Identity{}, g.deny(denial, nil)
	}

	subject, err := g.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, g.deny(domain.ErrCredentialInvalid, err)
	}

	identity, err := g.resolve(ctx, subject)
	if err != nil {
		return domain.Identity{}, err
	}

	if capability == "" {
		return identity, nil
	}

	ok, err := g.authz.Authorize(ctx, identity, capability)
	if d, denied := domain.AsDenial(err); denied {
		return domain.Identity{}, g.deny(d, nil)
	}
	if err != nil {
		metrics.AuthorizationDecisionsTotal.WithLabelValues(capability, "error").Inc()
		return domain.Identity{}, fmt.Errorf("gate: %w", err)
	}
	if !ok {
		metrics.AuthorizationDecisionsTotal.WithLabelValues(capability, "denied").Inc()
		g.log.Debug().Int64("user_id", identity.ID).Str("capability", capability).Msg("capability not granted")
		return domain.Identity{}, g.deny(domain.ErrInsufficientPermission, nil)
	}
	metrics.AuthorizationDecisionsTotal.WithLabelValues(capability, "granted").Inc()

	return identity, nil
}

// Protect wraps h so it only runs for requests admitted by Check.
func (g *Gate) Protect(capability string, h HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		identity, err := g.Check(req.Context(), req.Header.Get(echo.HeaderAuthorization), capability)
		if err != nil {
			return err
		}
		return h(c, identity)
	}
}

func (g *Gate) resolve(ctx context.Context, subject int64) (domain.Identity, error) {
	user, err := g.store.FindUserByID(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.Identity{}, g.deny(domain.ErrIdentityNotFound, nil)
		}
		return domain.Identity{}, fmt.Errorf("gate: resolve identity: %w", err)
	}

	identity, err := g.authz.Resolve(ctx, user)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("gate: %w", err)
	}
	return identity, nil
}

func (g *Gate) deny(d *domain.Denial, cause error) error {
	metrics.GateDenialsTotal.WithLabelValues(string(d.Reason)).Inc()
	g.log.Debug().Err(cause).Str("reason", string(d.Reason)).Msg("request denied")
	return d
}

// extractBearer expects exactly "<scheme> <token>" with a Bearer scheme,
// matched case-insensitively.
func extractBearer(header string) (string, *domain.Denial) {
	if header == "" {
		return "", domain.ErrCredentialMissing
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", domain.ErrCredentialMalformed
	}
	return parts[1], nil
}
