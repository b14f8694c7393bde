package mtic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

// LinkRequest binds a set of chips to one document within a session. Primary
// expresses caller intent: the link created during a document-creation flow
// is primary, later links of the same chips to other documents are not.
type LinkRequest struct {
	SessionID  string           `json:"mtic_session_id" validate:"required"`
	DocumentID uint             `json:"document_id" validate:"required"`
	Units      []UnitDescriptor `json:"mtics" validate:"required,min=1,dive"`
	Primary    bool             `json:"is_primary"`
}

// Sessions is the correlation engine: it owns the Open -> Closed lifecycle of
// capture sessions and the chip-to-document associations recorded in them.
type Sessions struct {
	store    Store
	registry *Registry
	log      *zap.Logger
	now      func() time.Time
}

func NewSessions(store Store, registry *Registry, log *zap.Logger) *Sessions {
	return &Sessions{store: store, registry: registry, log: log, now: time.Now}
}

// Open starts a capture session for an active reader at a location. The
// reader is created on first encounter via the registry; a deactivated reader
// is a hard failure, not retried.
func (s *Sessions) Open(ctx context.Context, readerID string, tenantID, operatorTenantUserID uint, lat, lon float64) (*model.MTICSession, error) {
	reader, err := s.registry.EnsureReader(ctx, readerID, tenantID, operatorTenantUserID)
	if err != nil {
		return nil, err
	}

	session := &model.MTICSession{
		ID:            uuid.New().String(),
		MTICReaderID:  reader.ID,
		TenantUserID:  operatorTenantUserID,
		Lat:           lat,
		Lon:           lon,
		StartDateTime: s.now(),
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("creating session for reader %s: %w", readerID, err)
	}
	return session, nil
}

// Close ends a session. The open-and-owned-by-operator predicate and the end
// timestamp are applied in one conditional update; a session that is unknown,
// already closed or owned by someone else is reported identically.
func (s *Sessions) Close(ctx context.Context, sessionID string, operatorTenantUserID uint) (*model.MTICSession, error) {
	end := s.now()
	matched, err := s.store.CloseSession(ctx, sessionID, operatorTenantUserID, end)
	if err != nil {
		return nil, fmt.Errorf("closing session %s: %w", sessionID, err)
	}
	if !matched {
		return nil, ErrSessionNotFound
	}

	session, err := s.store.SessionByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading closed session %s: %w", sessionID, err)
	}
	return session, nil
}

// LinkUnitsToDocument registers any unseen chips and associates every chip in
// the request with the document. A primary link for a chip that already has a
// primary document is rejected; the existing primary is never demoted.
func (s *Sessions) LinkUnitsToDocument(ctx context.Context, req LinkRequest) ([]model.MTICDocument, error) {
	for _, unit := range req.Units {
		if err := unit.Validate(); err != nil {
			return nil, err
		}
	}

	session, err := s.store.SessionByID(ctx, req.SessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading session %s: %w", req.SessionID, err)
	}

	if _, err := s.store.DocumentByID(ctx, req.DocumentID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("reading document %d: %w", req.DocumentID, err)
	}

	meta := CaptureMeta{ReaderID: session.MTICReaderID, Lat: session.Lat, Lon: session.Lon}

	// Register first, then write every association in one transaction. Chip
	// registrations are global and idempotent, so they may survive a failed
	// link batch; the link rows themselves land all-or-nothing.
	links := make([]model.MTICDocument, 0, len(req.Units))
	for _, unit := range req.Units {
		if _, err := s.registry.RegisterUnit(ctx, unit, meta); err != nil {
			return nil, err
		}
		links = append(links, model.MTICDocument{
			MTICID:        unit.ID,
			DocumentID:    req.DocumentID,
			MTICSessionID: session.ID,
			IsPrimary:     req.Primary,
		})
	}

	if err := s.store.CreateUnitDocuments(ctx, links); err != nil {
		if errors.Is(err, ErrPrimaryDocumentExists) {
			return nil, err
		}
		return nil, fmt.Errorf("linking mtics to document %d: %w", req.DocumentID, err)
	}

	return links, nil
}
