package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/mtic"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/logger"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/prometheus"
)

// mticFailure maps the engine's sentinel errors onto HTTP answers. Anything
// outside the known set is a store failure.
func mticFailure(c echo.Context, err error) error {
	switch {
	case errors.Is(err, mtic.ErrInvalidUnitDescriptor):
		prometheus.RecordMTICError("invalid_descriptor")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, mtic.ErrReaderDeactivated):
		prometheus.RecordMTICError("reader_deactivated")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, mtic.ErrReaderAccessDenied):
		prometheus.RecordMTICError("reader_access_denied")
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, mtic.ErrUnitNotFound),
		errors.Is(err, mtic.ErrSessionNotFound),
		errors.Is(err, mtic.ErrDocumentNotFound):
		prometheus.RecordMTICError("not_found")
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, mtic.ErrPrimaryDocumentExists):
		prometheus.RecordMTICError("primary_exists")
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	prometheus.RecordMTICError("store")
	return storeFailure(c, "MTIC operation failed", err)
}

// captureClaims admits only operators allowed to run capture workflows.
func captureClaims(c echo.Context) (*claims.Claims, error) {
	payload, err := requestClaims(c)
	if err != nil {
		return nil, err
	}
	if !payload.Role.Allows(claims.ActionCapture) {
		return nil, echo.NewHTTPError(http.StatusForbidden, "insufficient permissions")
	}
	return payload, nil
}

// StartMTICSession opens a capture session on a reader at a location. The
// reader is registered on first encounter.
func (h *Handler) StartMTICSession(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMTICOperation("session_start")

	payload, err := captureClaims(c)
	if err != nil {
		return err
	}

	var req struct {
		ReaderID string  `json:"mtic_reader_id" validate:"required"`
		Lat      float64 `json:"lat"`
		Lon      float64 `json:"lon"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mtic_reader_id is required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	session, err := h.sessions.Open(c.Request().Context(), req.ReaderID,
		payload.TenantID, payload.TenantUserID, req.Lat, req.Lon)
	if err != nil {
		return mticFailure(c, err)
	}

	prometheus.OpenSessionsGauge.Inc()

	log.Info("MTIC session started",
		zap.String("session_id", session.ID),
		zap.String("reader_id", req.ReaderID),
		zap.Uint("tenant_user_id", payload.TenantUserID))

	return c.JSON(http.StatusCreated, session)
}

// EndMTICSession closes a session owned by the caller. Closing an unknown,
// already closed or foreign session answers 404 in every case.
func (h *Handler) EndMTICSession(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMTICOperation("session_end")

	payload, err := captureClaims(c)
	if err != nil {
		return err
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session id is required"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())

	session, err := h.sessions.Close(c.Request().Context(), sessionID, payload.TenantUserID)
	if err != nil {
		return mticFailure(c, err)
	}

	prometheus.OpenSessionsGauge.Dec()

	log.Info("MTIC session ended",
		zap.String("session_id", session.ID),
		zap.Uint("tenant_user_id", payload.TenantUserID))

	return c.JSON(http.StatusOK, session)
}

// RegisterMTIC registers a chip captured outside a document flow. The
// capture must name an active reader the operator may use; the response
// distinguishes a fresh registration from a re-scan of a known chip.
func (h *Handler) RegisterMTIC(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMTICOperation("register")

	payload, err := captureClaims(c)
	if err != nil {
		return err
	}

	var req struct {
		ID       string   `json:"id" validate:"required"`
		UID      string   `json:"uid" validate:"required"`
		ReaderID string   `json:"mtic_reader_id" validate:"required"`
		Lat      *float64 `json:"lat" validate:"required"`
		Lon      *float64 `json:"lon" validate:"required"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id, uid, mtic_reader_id, lat and lon are required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	ctx := c.Request().Context()

	// The reader gates the registration exactly as it gates a session start
	if _, err := h.registry.EnsureReader(ctx, req.ReaderID, payload.TenantID, payload.TenantUserID); err != nil {
		return mticFailure(c, err)
	}

	result, err := h.registry.RegisterUnit(ctx,
		mtic.UnitDescriptor{ID: req.ID, UID: req.UID},
		mtic.CaptureMeta{ReaderID: req.ReaderID, Lat: *req.Lat, Lon: *req.Lon})
	if err != nil {
		return mticFailure(c, err)
	}

	status := http.StatusOK
	message := "existing"
	if result.Created {
		status = http.StatusCreated
		message = "new"
	}

	log.Info("MTIC registered",
		zap.String("mtic_id", req.ID),
		zap.Bool("created", result.Created))

	return c.JSON(status, echo.Map{
		"message": message,
		"mtic":    result.Unit,
	})
}

// LinkMTICDocuments binds a batch of chips to one document within an open
// session the caller owns. Unknown chips in the batch are registered in
// passing; the whole batch is validated before anything is written.
func (h *Handler) LinkMTICDocuments(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMTICOperation("link_documents")

	if _, err := captureClaims(c); err != nil {
		return err
	}

	var req mtic.LinkRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if err := h.validate.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mtic_session_id, document_id and at least one mtic are required"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())

	links, err := h.sessions.LinkUnitsToDocument(c.Request().Context(), req)
	if err != nil {
		return mticFailure(c, err)
	}

	log.Info("MTICs linked to document",
		zap.String("session_id", req.SessionID),
		zap.Uint("document_id", req.DocumentID),
		zap.Int("count", len(links)))

	return c.JSON(http.StatusCreated, echo.Map{
		"message":        "MTIC documents created successfully",
		"mtic_documents": links,
	})
}

// captureMetaFromQuery picks optional reader context off a lookup request so
// the search event carries where the scan happened.
func captureMetaFromQuery(c echo.Context) mtic.CaptureMeta {
	meta := mtic.CaptureMeta{ReaderID: c.QueryParam("mtic_reader_id")}
	if v, err := strconv.ParseFloat(c.QueryParam("lat"), 64); err == nil {
		meta.Lat = v
	}
	if v, err := strconv.ParseFloat(c.QueryParam("lon"), 64); err == nil {
		meta.Lon = v
	}
	return meta
}

// GetMTICSummary answers the fast lookup: the chip plus the identity of its
// primary document, if any. The lookup is recorded as a search event.
func (h *Handler) GetMTICSummary(c echo.Context) error {
	prometheus.RecordMTICOperation("summary")

	if _, err := requestClaims(c); err != nil {
		return err
	}

	unitID := c.Param("id")
	if unitID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mtic id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	summary, err := h.sessions.Summary(c.Request().Context(), unitID, captureMetaFromQuery(c))
	if err != nil {
		return mticFailure(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

// GetMTICDetails answers the full lookup: primary document, related
// documents and the capture session context of each association.
func (h *Handler) GetMTICDetails(c echo.Context) error {
	prometheus.RecordMTICOperation("details")

	if _, err := requestClaims(c); err != nil {
		return err
	}

	unitID := c.Param("id")
	if unitID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "mtic id is required"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())

	details, err := h.sessions.Details(c.Request().Context(), unitID, captureMetaFromQuery(c))
	if err != nil {
		return mticFailure(c, err)
	}
	return c.JSON(http.StatusOK, details)
}
