package handler

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/identity"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/middleware"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/mtic"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/validator"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
)

// Handler carries the collaborators the endpoints are built on.
type Handler struct {
	db       *gorm.DB
	provider identity.Provider
	resolver *claims.Resolver
	registry *mtic.Registry
	sessions *mtic.Sessions
	validate *validator.Validator
}

func New(db *gorm.DB, provider identity.Provider, resolver *claims.Resolver, registry *mtic.Registry, sessions *mtic.Sessions) *Handler {
	return &Handler{
		db:       db,
		provider: provider,
		resolver: resolver,
		registry: registry,
		sessions: sessions,
		validate: validator.New(),
	}
}

// requestClaims pulls the gate-attached claims for an admitted request. The
// returned error is an echo.HTTPError the handler passes straight back.
func requestClaims(c echo.Context) (*claims.Claims, error) {
	payload, ok := middleware.ClaimsFromContext(c)
	if !ok {
		logger.FromContext(c).Error("Admitted request is missing claims in context")
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return payload, nil
}

// storeFailure logs the diagnostic detail server-side and answers with a
// generic message, never the raw store error.
func storeFailure(c echo.Context, message string, err error) error {
	logger.FromContext(c).Error(message, zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error, please try again later"})
}

// isDuplicate reports whether err is a unique constraint violation.
func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
