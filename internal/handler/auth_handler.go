package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

// Register creates a new user account. The subject id is assigned here and
// never changes afterwards.
func (h *Handler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Name     string `json:"name"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.validate.Validate(&req); err != nil {
		log.Error("Invalid registration data", zap.Error(err))
		prometheus.RecordAuthError("incomplete_registration")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and a password of at least 8 characters are required"})
	}

	// Check if user already exists - track DB query
	defer prometheus.TrackDBOperation("query")(time.Now())
	var existingUser model.User
	result := h.db.Where("email = ?", req.Email).First(&existingUser)
	if result.Error == nil {
		log.Error("User already exists", zap.String("email", req.Email))
		prometheus.RecordAuthError("email_already_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		prometheus.RecordAuthError("password_hash_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	user := model.User{
		UID:      uuid.New().String(),
		Email:    req.Email,
		Password: string(hashedPassword),
		Name:     req.Name,
	}

	if err := h.db.Create(&user).Error; err != nil {
		return storeFailure(c, "Failed to create user", err)
	}

	log.Info("User registered",
		zap.String("email", user.Email),
		zap.Uint("user_id", user.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registration successful",
		"user": map[string]interface{}{
			"id":    user.ID,
			"uid":   user.UID,
			"email": user.Email,
			"name":  user.Name,
		},
	})
}

// Login authenticates a user, resolves and attaches its claims, and issues a
// token. A user without an active tenant still receives a claims-less token
// plus an onboarding hint; protected tenant endpoints stay out of reach until
// onboarding completes.
func (h *Handler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if err := h.validate.Validate(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	// Find user in database - track DB operation duration
	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	result := h.db.Where("email = ?", req.Email).First(&user)
	if result.Error != nil {
		log.Error("User not found", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Error("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	ctx := c.Request().Context()

	// Resolve and attach claims so the issued token carries them
	var onboardingRequired bool
	resolved, err := h.resolver.Resolve(ctx, user.UID)
	switch {
	case err == nil:
		prometheus.RecordClaimsResolution("resolved")
		if err := h.provider.AttachClaims(ctx, user.UID, resolved); err != nil {
			return storeFailure(c, "Failed to attach claims at login", err)
		}
	case errors.Is(err, claims.ErrNoActiveTenant):
		prometheus.RecordClaimsResolution("no_active_tenant")
		onboardingRequired = true
	default:
		prometheus.RecordClaimsResolution("error")
		return storeFailure(c, "Claims resolution failed at login", err)
	}

	token, err := h.provider.IssueToken(ctx, user.UID, user.Email)
	if err != nil {
		log.Error("Failed to issue token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.Uint("user_id", user.ID),
		zap.Bool("onboarding_required", onboardingRequired))

	response := echo.Map{
		"token": token,
		"user": map[string]interface{}{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
		},
	}
	if onboardingRequired {
		response["message"] = "No active tenant membership, create or join a tenant to continue"
	} else {
		response["claims"] = resolved
	}

	return c.JSON(http.StatusOK, response)
}

// RefreshToken re-issues a token for a verified subject, picking up whatever
// claims are attached to its provider record. This is the only way an
// outstanding credential's claims ever change; the server never force-expires
// a token it already issued.
func (h *Handler) RefreshToken(c echo.Context) error {
	log := logger.FromContext(c)

	subjectUID, ok := c.Get("subject_uid").(string)
	if !ok || subjectUID == "" {
		log.Error("Refresh request without verified subject")
		prometheus.RecordAuthError("refresh_without_subject")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	email, _ := c.Get("email").(string)

	token, err := h.provider.IssueToken(c.Request().Context(), subjectUID, email)
	if err != nil {
		log.Error("Failed to re-issue token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	return c.JSON(http.StatusOK, echo.Map{"token": token})
}
