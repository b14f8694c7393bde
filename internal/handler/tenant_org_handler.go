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

// CreateTenantOrg creates an organization node inside the caller's tenant.
// Administrators only. A parent, when given, must belong to the same tenant.
func (h *Handler) CreateTenantOrg(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create_org")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		Name     string `json:"name" validate:"required"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	if req.ParentID != nil {
		var parent model.TenantOrg
		if err := h.db.Where("id = ? AND tenant_id = ?", *req.ParentID, payload.TenantID).
			First(&parent).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.JSON(http.StatusNotFound, echo.Map{"error": "parent organization not found"})
			}
			return storeFailure(c, "Failed to look up parent organization", err)
		}
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	org := model.TenantOrg{
		TenantID: payload.TenantID,
		ParentID: req.ParentID,
		Name:     req.Name,
	}
	if err := h.db.Create(&org).Error; err != nil {
		return storeFailure(c, "Failed to create tenant organization", err)
	}

	log.Info("Tenant organization created",
		zap.Uint("tenant_id", payload.TenantID),
		zap.Uint("tenant_org_id", org.ID),
		zap.String("name", org.Name))

	return c.JSON(http.StatusCreated, org)
}

// ListTenantOrgs returns the organization nodes of the caller's tenant.
func (h *Handler) ListTenantOrgs(c echo.Context) error {
	payload, err := requestClaims(c)
	if err != nil {
		return err
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var orgs []model.TenantOrg
	if err := h.db.Where("tenant_id = ?", payload.TenantID).
		Order("id").Find(&orgs).Error; err != nil {
		return storeFailure(c, "Failed to list tenant organizations", err)
	}
	return c.JSON(http.StatusOK, orgs)
}

// AddTenantOrgUser grants a tenant user a permission level within one org.
// Administrators only. The member's attached claims are invalidated so the
// new org shows up on their next token refresh.
func (h *Handler) AddTenantOrgUser(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("add_org_user")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		TenantOrgID  uint   `json:"tenant_org_id" validate:"required"`
		TenantUserID uint   `json:"tenant_user_id" validate:"required"`
		Permission   string `json:"permission"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_org_id and tenant_user_id are required"})
	}
	if req.Permission == "" {
		req.Permission = string(claims.PermissionRead)
	}
	if req.Permission != string(claims.PermissionRead) && req.Permission != string(claims.PermissionReadWrite) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "permission must be read or read-write"})
	}

	// Both sides of the grant must live in the caller's tenant
	var org model.TenantOrg
	if err := h.db.Where("id = ? AND tenant_id = ?", req.TenantOrgID, payload.TenantID).
		First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
		}
		return storeFailure(c, "Failed to look up organization", err)
	}
	var member model.TenantUser
	if err := h.db.Preload("User").
		Where("id = ? AND tenant_id = ?", req.TenantUserID, payload.TenantID).
		First(&member).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "tenant user not found"})
		}
		return storeFailure(c, "Failed to look up tenant user", err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	grant := model.TenantOrgUser{
		TenantOrgID:  req.TenantOrgID,
		TenantUserID: req.TenantUserID,
		Permission:   req.Permission,
	}
	if err := h.db.Create(&grant).Error; err != nil {
		if isDuplicate(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "user already belongs to this organization"})
		}
		return storeFailure(c, "Failed to add user to organization", err)
	}

	h.invalidateSubject(c, member.User.UID)

	log.Info("Added user to tenant organization",
		zap.Uint("tenant_org_id", req.TenantOrgID),
		zap.Uint("tenant_user_id", req.TenantUserID),
		zap.String("permission", req.Permission))

	return c.JSON(http.StatusCreated, grant)
}

// GrantOrgDocument authorizes an org to instantiate documents from a
// template. Administrators only. One grant per (org, template) pair.
func (h *Handler) GrantOrgDocument(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("grant_org_document")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		TenantOrgID        uint   `json:"tenant_org_id" validate:"required"`
		DocumentTemplateID uint   `json:"document_template_id" validate:"required"`
		Permission         string `json:"permission"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_org_id and document_template_id are required"})
	}
	if req.Permission == "" {
		req.Permission = string(claims.PermissionRead)
	}

	var org model.TenantOrg
	if err := h.db.Where("id = ? AND tenant_id = ?", req.TenantOrgID, payload.TenantID).
		First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "organization not found"})
		}
		return storeFailure(c, "Failed to look up organization", err)
	}
	var template model.DocumentTemplate
	if err := h.db.Where("id = ? AND tenant_id = ?", req.DocumentTemplateID, payload.TenantID).
		First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "document template not found"})
		}
		return storeFailure(c, "Failed to look up document template", err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	grant := model.TenantOrgDoc{
		TenantOrgID:        req.TenantOrgID,
		DocumentTemplateID: req.DocumentTemplateID,
		Permission:         req.Permission,
	}
	if err := h.db.Create(&grant).Error; err != nil {
		if isDuplicate(err) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "organization already holds this template"})
		}
		return storeFailure(c, "Failed to grant template to organization", err)
	}

	log.Info("Granted document template to organization",
		zap.Uint("tenant_org_id", req.TenantOrgID),
		zap.Uint("document_template_id", req.DocumentTemplateID))

	return c.JSON(http.StatusCreated, grant)
}
