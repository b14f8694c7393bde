package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/identity"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

// ClaimsContextKey is where the gate stores the admitted request's claims.
const ClaimsContextKey = "claims"

// attachTimeout bounds the background claims attachment started for a
// rejected refresh-required request.
const attachTimeout = 10 * time.Second

// AuthGate verifies the bearer credential, loads or resolves the caller's
// claims and either admits the request with claims in context or rejects it.
//
// A verified token without claims is never admitted: the gate resolves and
// attaches claims for future tokens, then rejects the current request so the
// caller retries with a credential that actually carries them.
type AuthGate struct {
	provider identity.Provider
	resolver *claims.Resolver
	log      *zap.Logger
}

func NewAuthGate(provider identity.Provider, resolver *claims.Resolver, log *zap.Logger) *AuthGate {
	return &AuthGate{provider: provider, resolver: resolver, log: log}
}

// Middleware is the per-request authorization gate.
func (g *AuthGate) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		// Get the Authorization header
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			log.Error("Missing Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authorization header missing or malformed"})
		}

		// Check if it's a Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Invalid Authorization header format")
			prometheus.RecordAuthError("invalid_auth_format")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authorization header missing or malformed"})
		}

		// Verify the credential with the identity provider
		ident, err := g.provider.Verify(c.Request().Context(), parts[1])
		if errors.Is(err, identity.ErrInvalidToken) {
			log.Error("Invalid bearer token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token is invalid or expired"})
		}
		if err != nil {
			log.Error("Credential verification failed", zap.Error(err))
			prometheus.RecordAuthError("verification_failure")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
		}

		if ident.Claims == nil {
			return g.handleMissingClaims(c, log, ident)
		}

		// Claims are attached to the request context for downstream handlers
		c.Set(ClaimsContextKey, ident.Claims)
		c.Set("subject_uid", ident.SubjectUID)
		c.Set("email", ident.Email)
		c.Set("user_id", ident.Claims.UserID)
		c.Set("tenant_id", ident.Claims.TenantID)
		c.Set("tenant_user_id", ident.Claims.TenantUserID)
		c.Set("user_role", string(ident.Claims.Role))

		return next(c)
	}
}

// handleMissingClaims resolves claims for a verified subject, attaches them
// for future tokens and still rejects the current request. Admitting it would
// act on authorization data the credential itself never carried.
func (g *AuthGate) handleMissingClaims(c echo.Context, log *zap.Logger, ident *identity.Identity) error {
	resolved, err := g.resolver.Resolve(c.Request().Context(), ident.SubjectUID)
	if errors.Is(err, claims.ErrUserNotFound) || errors.Is(err, claims.ErrNoActiveTenant) {
		prometheus.RecordClaimsResolution("no_active_tenant")
		log.Warn("Subject has no active tenant membership",
			zap.String("subject_uid", ident.SubjectUID))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user does not have access to an active tenant"})
	}
	if err != nil {
		prometheus.RecordClaimsResolution("error")
		log.Error("Claims resolution failed",
			zap.String("subject_uid", ident.SubjectUID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}

	prometheus.RecordClaimsResolution("resolved")

	// The rejected response does not wait on the attachment. A failed attach
	// leaves the client unable to obtain valid claims, so it must be visible
	// in the logs.
	subjectUID := ident.SubjectUID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), attachTimeout)
		defer cancel()
		if err := g.provider.AttachClaims(ctx, subjectUID, resolved); err != nil {
			g.log.Error("Failed to attach resolved claims",
				zap.String("subject_uid", subjectUID),
				zap.Error(err))
		}
	}()

	prometheus.RecordAuthError("refresh_required")
	return c.JSON(http.StatusForbidden, echo.Map{
		"error": "access denied, refresh your token to update permissions",
	})
}

// Verified only requires a verifiable credential. It is the gate for
// onboarding endpoints a user must reach before holding any tenant
// membership, such as creating their first tenant.
func (g *AuthGate) Verified(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		log := logger.FromContext(c)

		authHeader := c.Request().Header.Get("Authorization")
		parts := strings.Split(authHeader, " ")
		if authHeader == "" || len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Error("Missing or malformed Authorization header")
			prometheus.RecordAuthError("missing_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authorization header missing or malformed"})
		}

		ident, err := g.provider.Verify(c.Request().Context(), parts[1])
		if errors.Is(err, identity.ErrInvalidToken) {
			log.Error("Invalid bearer token", zap.Error(err))
			prometheus.RecordAuthError("invalid_token")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "token is invalid or expired"})
		}
		if err != nil {
			log.Error("Credential verification failed", zap.Error(err))
			prometheus.RecordAuthError("verification_failure")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
		}

		c.Set("subject_uid", ident.SubjectUID)
		c.Set("email", ident.Email)
		if ident.Claims != nil {
			c.Set(ClaimsContextKey, ident.Claims)
		}

		return next(c)
	}
}

// ClaimsFromContext returns the claims the gate attached for an admitted
// request.
func ClaimsFromContext(c echo.Context) (*claims.Claims, bool) {
	payload, ok := c.Get(ClaimsContextKey).(*claims.Claims)
	return payload, ok
}
