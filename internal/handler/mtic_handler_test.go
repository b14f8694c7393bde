package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/middleware"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/mtic"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/validator"
)

// capStore is a minimal in-memory mtic.Store for exercising the capture
// endpoints without a database.
type capStore struct {
	readers     map[string]model.MTICReader
	memberships map[uint]map[uint]bool
	units       map[string]model.MTIC
	events      []model.MTICLog
	sessions    map[string]model.MTICSession
	documents   map[uint]model.Document
	unitDocs    []model.MTICDocument
}

func newCapStore() *capStore {
	return &capStore{
		readers:     map[string]model.MTICReader{},
		memberships: map[uint]map[uint]bool{},
		units:       map[string]model.MTIC{},
		sessions:    map[string]model.MTICSession{},
		documents:   map[uint]model.Document{},
	}
}

func (s *capStore) ReaderByID(_ context.Context, id string) (*model.MTICReader, error) {
	reader, ok := s.readers[id]
	if !ok {
		return nil, mtic.ErrNotFound
	}
	return &reader, nil
}

func (s *capStore) CreateReader(_ context.Context, reader *model.MTICReader) error {
	if _, ok := s.readers[reader.ID]; ok {
		return mtic.ErrDuplicate
	}
	s.readers[reader.ID] = *reader
	return nil
}

func (s *capStore) TenantMembershipExists(_ context.Context, tenantID, tenantUserID uint) (bool, error) {
	return s.memberships[tenantID][tenantUserID], nil
}

func (s *capStore) UnitByID(_ context.Context, id string) (*model.MTIC, error) {
	unit, ok := s.units[id]
	if !ok {
		return nil, mtic.ErrNotFound
	}
	return &unit, nil
}

func (s *capStore) CreateUnitWithEvent(_ context.Context, unit *model.MTIC, event *model.MTICLog) error {
	if _, ok := s.units[unit.ID]; ok {
		return mtic.ErrDuplicate
	}
	s.units[unit.ID] = *unit
	s.events = append(s.events, *event)
	return nil
}

func (s *capStore) AppendEvent(_ context.Context, event *model.MTICLog) error {
	s.events = append(s.events, *event)
	return nil
}

func (s *capStore) CreateSession(_ context.Context, session *model.MTICSession) error {
	s.sessions[session.ID] = *session
	return nil
}

func (s *capStore) SessionByID(_ context.Context, id string) (*model.MTICSession, error) {
	session, ok := s.sessions[id]
	if !ok {
		return nil, mtic.ErrNotFound
	}
	return &session, nil
}

func (s *capStore) CloseSession(_ context.Context, sessionID string, operatorTenantUserID uint, end time.Time) (bool, error) {
	session, ok := s.sessions[sessionID]
	if !ok || session.TenantUserID != operatorTenantUserID || session.EndDateTime != nil {
		return false, nil
	}
	session.EndDateTime = &end
	s.sessions[sessionID] = session
	return true, nil
}

func (s *capStore) DocumentByID(_ context.Context, id uint) (*model.Document, error) {
	doc, ok := s.documents[id]
	if !ok {
		return nil, mtic.ErrNotFound
	}
	return &doc, nil
}

func (s *capStore) CreateUnitDocuments(_ context.Context, links []model.MTICDocument) error {
	s.unitDocs = append(s.unitDocs, links...)
	return nil
}

func (s *capStore) UnitDocuments(_ context.Context, unitID string) ([]model.MTICDocument, error) {
	var links []model.MTICDocument
	for _, link := range s.unitDocs {
		if link.MTICID == unitID {
			links = append(links, link)
		}
	}
	return links, nil
}

var _ mtic.Store = (*capStore)(nil)

func captureHandler(store *capStore) *Handler {
	registry := mtic.NewRegistry(store, zap.NewNop())
	return &Handler{
		registry: registry,
		sessions: mtic.NewSessions(store, registry, zap.NewNop()),
		validate: validator.New(),
	}
}

func operatorClaims() *claims.Claims {
	return &claims.Claims{
		Version:      claims.PayloadVersion,
		UserID:       3,
		TenantID:     5,
		TenantUserID: 11,
		Role:         claims.RoleIndividual,
	}
}

func registerRequest(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/mtics", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(middleware.ClaimsContextKey, operatorClaims())
	require.NoError(t, h.RegisterMTIC(c))
	return rec
}

func TestRegisterMTICCreatesReaderAndUnit(t *testing.T) {
	store := newCapStore()
	h := captureHandler(store)

	rec := registerRequest(t, h, `{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1","lat":51.5,"lon":-0.1}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"new"`)

	reader, ok := store.readers["R1"]
	require.True(t, ok)
	assert.Equal(t, uint(5), reader.TenantID)
	_, ok = store.units["M1"]
	assert.True(t, ok)

	// Re-scan of the same chip answers with the stored row
	rec = registerRequest(t, h, `{"id":"M1","uid":"uid-other","mtic_reader_id":"R1","lat":51.5,"lon":-0.1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"message":"existing"`)
	assert.Equal(t, "uid-m1", store.units["M1"].UID)
}

func TestRegisterMTICRejectsDeactivatedReader(t *testing.T) {
	store := newCapStore()
	store.readers["R1"] = model.MTICReader{ID: "R1", TenantID: 99, IsActive: false}
	h := captureHandler(store)

	rec := registerRequest(t, h, `{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1","lat":0,"lon":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, ok := store.units["M1"]
	assert.False(t, ok)
	assert.Empty(t, store.events)
}

func TestRegisterMTICForeignReaderNeedsMembership(t *testing.T) {
	store := newCapStore()
	store.readers["R1"] = model.MTICReader{ID: "R1", TenantID: 99, IsActive: true}
	h := captureHandler(store)

	rec := registerRequest(t, h, `{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1","lat":0,"lon":0}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	_, ok := store.units["M1"]
	assert.False(t, ok)

	// With a membership in the reader's tenant the same capture succeeds
	store.memberships[99] = map[uint]bool{11: true}
	rec = registerRequest(t, h, `{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1","lat":0,"lon":0}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRegisterMTICRequiresReaderAndLocation(t *testing.T) {
	h := captureHandler(newCapStore())

	for _, body := range []string{
		`{"id":"M1","uid":"uid-m1"}`,
		`{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1"}`,
		`{"id":"M1","uid":"uid-m1","mtic_reader_id":"R1","lat":1.0}`,
		`{"uid":"uid-m1","mtic_reader_id":"R1","lat":1.0,"lon":2.0}`,
	} {
		rec := registerRequest(t, h, body)
		assert.Equalf(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}
