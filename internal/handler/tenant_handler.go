package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

// CreateTenant handles self-service tenant signup. Any verified user may
// create a tenant; the creator becomes its first administrator and the new
// membership becomes their default. The caller must refresh its token for
// the new claims to take effect.
func (h *Handler) CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	subjectUID, ok := c.Get("subject_uid").(string)
	if !ok || subjectUID == "" {
		log.Error("Failed to get subject from context")
		prometheus.RecordAuthError("unauthorized_tenant_creation")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name    string `json:"name" validate:"required"`
		Website string `json:"website"`
		Logo    string `json:"logo"`
	}

	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse tenant creation request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		log.Error("Invalid tenant data", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	var user model.User
	if err := h.db.Where("uid = ?", subjectUID).First(&user).Error; err != nil {
		return storeFailure(c, "Failed to load user for tenant creation", err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	tenant := model.Tenant{Name: req.Name, Website: req.Website, Logo: req.Logo}
	var tenantUser model.TenantUser

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		tenantUser = model.TenantUser{
			TenantID: tenant.ID,
			UserID:   user.ID,
			Role:     string(claims.RoleAdministrator),
			IsActive: true,
		}
		if err := tx.Create(&tenantUser).Error; err != nil {
			return err
		}

		// First tenant becomes the default used for claims resolution
		return tx.Model(&model.User{}).Where("id = ?", user.ID).
			Update("default_tenant_user_id", tenantUser.ID).Error
	})
	if err != nil {
		return storeFailure(c, "Failed to create tenant", err)
	}

	// Attach the fresh claims so the next token issuance carries them
	ctx := c.Request().Context()
	resolved, err := h.resolver.Resolve(ctx, subjectUID)
	if err != nil {
		log.Error("Failed to resolve claims after tenant creation", zap.Error(err))
	} else if err := h.provider.AttachClaims(ctx, subjectUID, resolved); err != nil {
		log.Error("Failed to attach claims after tenant creation", zap.Error(err))
	}

	log.Info("Tenant created",
		zap.String("name", tenant.Name),
		zap.Uint("tenant_id", tenant.ID),
		zap.Uint("user_id", user.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":     "Tenant created, refresh your token to activate the new permissions",
		"tenant":      tenant,
		"tenant_user": tenantUser,
	})
}

// UpdateTenant updates tenant profile fields. Administrators only.
func (h *Handler) UpdateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("update")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		log.Warn("Unauthorized tenant update attempt",
			zap.Uint("tenant_user_id", payload.TenantUserID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you do not have permission to update this tenant"})
	}

	var req struct {
		Name    string `json:"name"`
		Website string `json:"website"`
		Logo    string `json:"logo"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Website != "" {
		updates["website"] = req.Website
	}
	if req.Logo != "" {
		updates["logo"] = req.Logo
	}
	if len(updates) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no valid fields provided for update"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	result := h.db.Model(&model.Tenant{}).Where("id = ?", payload.TenantID).Updates(updates)
	if result.Error != nil {
		return storeFailure(c, "Failed to update tenant", result.Error)
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant not found"})
	}

	log.Info("Tenant updated", zap.Uint("tenant_id", payload.TenantID))
	return c.JSON(http.StatusOK, echo.Map{"message": "Tenant updated successfully"})
}

// ListUserTenants returns every active tenant membership of the caller.
func (h *Handler) ListUserTenants(c echo.Context) error {
	prometheus.RecordTenantOperation("list")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var memberships []model.TenantUser
	if err := h.db.Preload("Tenant").
		Where("user_id = ? AND is_active = ?", payload.UserID, true).
		Find(&memberships).Error; err != nil {
		return storeFailure(c, "Failed to list tenant memberships", err)
	}

	type tenantResponse struct {
		TenantID     uint   `json:"tenant_id"`
		TenantUserID uint   `json:"tenant_user_id"`
		Name         string `json:"name"`
		Role         string `json:"role"`
		IsDefault    bool   `json:"is_default"`
	}

	response := make([]tenantResponse, 0, len(memberships))
	for _, m := range memberships {
		response = append(response, tenantResponse{
			TenantID:     m.TenantID,
			TenantUserID: m.ID,
			Name:         m.Tenant.Name,
			Role:         m.Role,
			IsDefault:    m.ID == payload.TenantUserID,
		})
	}

	return c.JSON(http.StatusOK, response)
}

// SwitchTenant changes the caller's default tenant membership, re-resolves
// claims against it and issues a token carrying the new context.
func (h *Handler) SwitchTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("switch")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	subjectUID, _ := c.Get("subject_uid").(string)
	email, _ := c.Get("email").(string)

	var req struct {
		TenantID uint `json:"tenant_id" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var membership model.TenantUser
	result := h.db.Where("user_id = ? AND tenant_id = ? AND is_active = ?",
		payload.UserID, req.TenantID, true).First(&membership)
	if result.Error != nil {
		log.Warn("Unauthorized tenant switch attempt",
			zap.Uint("user_id", payload.UserID),
			zap.Uint("tenant_id", req.TenantID))
		return c.JSON(http.StatusForbidden, echo.Map{"error": "access denied to requested tenant"})
	}

	if err := h.db.Model(&model.User{}).Where("id = ?", payload.UserID).
		Update("default_tenant_user_id", membership.ID).Error; err != nil {
		return storeFailure(c, "Failed to switch default tenant", err)
	}

	// Old claims are stale now; re-resolve against the new membership and
	// re-issue so the caller leaves with a usable credential.
	ctx := c.Request().Context()
	resolved, err := h.resolver.Resolve(ctx, subjectUID)
	if err != nil {
		return storeFailure(c, "Failed to resolve claims after tenant switch", err)
	}
	if err := h.provider.AttachClaims(ctx, subjectUID, resolved); err != nil {
		return storeFailure(c, "Failed to attach claims after tenant switch", err)
	}

	token, err := h.provider.IssueToken(ctx, subjectUID, email)
	if err != nil {
		log.Error("Failed to issue token after tenant switch", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	prometheus.IncreaseActiveTokens()

	log.Info("User switched tenant",
		zap.Uint("user_id", payload.UserID),
		zap.Uint("tenant_id", req.TenantID))

	return c.JSON(http.StatusOK, echo.Map{
		"token":  token,
		"claims": resolved,
	})
}

// AddTenantUser adds a user to the caller's tenant by email, with a role from
// the closed set. Administrators only. The member's attached claims are
// invalidated; their outstanding tokens keep working until refreshed.
func (h *Handler) AddTenantUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("add_user")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		UserEmail string `json:"user_email" validate:"required,email"`
		Role      string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_email is required"})
	}
	if req.Role == "" {
		req.Role = string(claims.RoleIndividual)
	}
	role, err := claims.ParseRole(req.Role)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "role must be administrator, manager or individual"})
	}

	var user model.User
	if err := h.db.Where("email = ?", req.UserEmail).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return storeFailure(c, "Failed to look up user", err)
	}

	membership := model.TenantUser{
		TenantID: payload.TenantID,
		UserID:   user.ID,
		Role:     string(role),
		IsActive: true,
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}
		// A user joining their first tenant gets it as default
		if user.DefaultTenantUserID == nil {
			return tx.Model(&model.User{}).Where("id = ?", user.ID).
				Update("default_tenant_user_id", membership.ID).Error
		}
		return nil
	})
	if err != nil {
		if isDuplicate(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already belongs to this tenant"})
		}
		return storeFailure(c, "Failed to add user to tenant", err)
	}

	h.invalidateSubject(c, user.UID)

	log.Info("Added user to tenant",
		zap.Uint("tenant_id", payload.TenantID),
		zap.String("user_email", req.UserEmail),
		zap.String("role", string(role)))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":     "User added to tenant successfully",
		"tenant_user": membership,
	})
}

// invalidateSubject clears a subject's attached claims after a membership or
// permission change. Failure is logged, not surfaced: the subject's next
// refresh re-resolves either way.
func (h *Handler) invalidateSubject(c echo.Context, subjectUID string) {
	if err := h.provider.Invalidate(c.Request().Context(), subjectUID); err != nil {
		logger.FromContext(c).Error("Failed to invalidate attached claims",
			zap.String("subject_uid", subjectUID),
			zap.Error(err))
	}
}
