package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/docfields"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

// CreateDocumentConfig registers a document kind for the caller's tenant.
// Requires the manage-documents action.
func (h *Handler) CreateDocumentConfig(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create_document_config")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageDocuments) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		Name    string `json:"name" validate:"required"`
		DocType string `json:"doc_type"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	config := model.DocumentConfig{
		TenantID: payload.TenantID,
		Name:     req.Name,
		DocType:  req.DocType,
	}
	if err := h.db.Create(&config).Error; err != nil {
		return storeFailure(c, "Failed to create document config", err)
	}

	log.Info("Document config created",
		zap.Uint("tenant_id", payload.TenantID),
		zap.Uint("document_config_id", config.ID))

	return c.JSON(http.StatusCreated, config)
}

// CreateDocumentTemplate binds a config to a concrete field layout. The
// field configuration is validated structurally before it is stored so a
// broken layout can never make every later document submission fail.
func (h *Handler) CreateDocumentTemplate(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create_document_template")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}
	if !payload.Role.Allows(claims.ActionManageDocuments) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "insufficient permissions"})
	}

	var req struct {
		DocumentConfigID uint                    `json:"document_config_id" validate:"required"`
		Name             string                  `json:"name" validate:"required"`
		FieldConfig      []docfields.FieldConfig `json:"field_config" validate:"required,min=1"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "document_config_id, name and field_config are required"})
	}
	for _, fc := range req.FieldConfig {
		if fc.Key == "" || fc.Label == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "every field needs a key and a label"})
		}
		if !fc.FieldType.Valid() {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown field type " + strconv.Quote(string(fc.FieldType))})
		}
	}

	var config model.DocumentConfig
	if err := h.db.Where("id = ? AND tenant_id = ?", req.DocumentConfigID, payload.TenantID).
		First(&config).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "document config not found"})
		}
		return storeFailure(c, "Failed to look up document config", err)
	}

	encoded, err := json.Marshal(req.FieldConfig)
	if err != nil {
		return storeFailure(c, "Failed to encode field config", err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	template := model.DocumentTemplate{
		TenantID:         payload.TenantID,
		DocumentConfigID: req.DocumentConfigID,
		Name:             req.Name,
		FieldConfig:      string(encoded),
	}
	if err := h.db.Create(&template).Error; err != nil {
		return storeFailure(c, "Failed to create document template", err)
	}

	log.Info("Document template created",
		zap.Uint("tenant_id", payload.TenantID),
		zap.Uint("document_template_id", template.ID))

	return c.JSON(http.StatusCreated, template)
}

// CreateDocument instantiates a document from a template inside an org the
// caller can write to. The org must hold a grant for the template and the
// submitted field values must satisfy the template's field configuration.
func (h *Handler) CreateDocument(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create_document")

	payload, err := requestClaims(c)
	if err != nil {
		return err
	}

	var req struct {
		TenantOrgID        uint                   `json:"tenant_org_id" validate:"required"`
		DocumentTemplateID uint                   `json:"document_template_id" validate:"required"`
		Fields             []docfields.FieldValue `json:"fields"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "tenant_org_id and document_template_id are required"})
	}

	// Caller needs write access inside the target org; administrators may
	// write anywhere in the tenant.
	if !payload.Role.Allows(claims.ActionManageTenant) {
		perm, ok := payload.OrgPermissionFor(req.TenantOrgID)
		if !ok || perm != claims.PermissionReadWrite {
			log.Warn("Document creation denied",
				zap.Uint("tenant_user_id", payload.TenantUserID),
				zap.Uint("tenant_org_id", req.TenantOrgID))
			return c.JSON(http.StatusForbidden, echo.Map{"error": "no write access to this organization"})
		}
	}

	// The org must hold a grant for the template
	var grant model.TenantOrgDoc
	if err := h.db.Preload("DocumentTemplate").
		Where("tenant_org_id = ? AND document_template_id = ?", req.TenantOrgID, req.DocumentTemplateID).
		First(&grant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "organization does not hold this document template"})
		}
		return storeFailure(c, "Failed to look up template grant", err)
	}
	if grant.DocumentTemplate.TenantID != payload.TenantID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "organization does not hold this document template"})
	}

	var configs []docfields.FieldConfig
	if err := json.Unmarshal([]byte(grant.DocumentTemplate.FieldConfig), &configs); err != nil {
		return storeFailure(c, "Template carries a corrupt field config", err)
	}

	fields, err := docfields.Validate(configs, req.Fields)
	if err != nil {
		var verr *docfields.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusBadRequest, echo.Map{
				"error":    "document fields failed validation",
				"problems": verr.Problems,
			})
		}
		return storeFailure(c, "Failed to validate document fields", err)
	}

	encoded, err := json.Marshal(fields)
	if err != nil {
		return storeFailure(c, "Failed to encode document fields", err)
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	doc := model.Document{
		UID:                uuid.New().String(),
		TenantOrgID:        req.TenantOrgID,
		DocumentTemplateID: req.DocumentTemplateID,
		DocumentFields:     string(encoded),
		CreatedByID:        payload.TenantUserID,
	}
	if err := h.db.Create(&doc).Error; err != nil {
		return storeFailure(c, "Failed to create document", err)
	}

	log.Info("Document created",
		zap.Uint("document_id", doc.ID),
		zap.Uint("tenant_org_id", req.TenantOrgID),
		zap.Uint("document_template_id", req.DocumentTemplateID))

	return c.JSON(http.StatusCreated, doc)
}

// GetDocument returns one document the caller can read. The document's org
// must be in the caller's tenant, and non-administrators also need an org
// membership.
func (h *Handler) GetDocument(c echo.Context) error {
	payload, err := requestClaims(c)
	if err != nil {
		return err
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid document id"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	var doc model.Document
	if err := h.db.Preload("TenantOrg").Preload("DocumentTemplate").
		First(&doc, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
		}
		return storeFailure(c, "Failed to load document", err)
	}

	if doc.TenantOrg.TenantID != payload.TenantID {
		// Do not reveal that a document exists across the tenant boundary
		return c.JSON(http.StatusNotFound, echo.Map{"error": "document not found"})
	}
	if !payload.Role.Allows(claims.ActionManageTenant) {
		if _, ok := payload.OrgPermissionFor(doc.TenantOrgID); !ok {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "no access to this organization"})
		}
	}

	return c.JSON(http.StatusOK, doc)
}
