package mtic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

// TemplateIdentity names the template a document was instantiated from.
type TemplateIdentity struct {
	DocumentID         uint   `json:"document_id"`
	DocumentUID        string `json:"document_uid,omitempty"`
	DocumentTemplateID uint   `json:"document_template_id"`
	TemplateName       string `json:"template_name,omitempty"`
}

// DocumentAssociation is one chip-to-document link with its session context.
type DocumentAssociation struct {
	TemplateIdentity
	MTICSessionID string    `json:"mtic_session_id"`
	LinkedAt      time.Time `json:"linked_at"`
}

// SessionInfo describes the capture session a chip's primary association
// originated from.
type SessionInfo struct {
	SessionID     string     `json:"session_id"`
	MTICReaderID  string     `json:"mtic_reader_id"`
	Lat           float64    `json:"lat"`
	Lon           float64    `json:"lon"`
	StartDateTime time.Time  `json:"start_date_time"`
	EndDateTime   *time.Time `json:"end_date_time,omitempty"`
}

// UnitSummary is the compact lookup projection: the chip plus the template
// identity of its primary document only.
type UnitSummary struct {
	Unit            *model.MTIC       `json:"mtic"`
	PrimaryDocument *TemplateIdentity `json:"primary_document"`
}

// UnitDetails is the full projection: primary and related associations plus
// the originating session.
type UnitDetails struct {
	Unit             *model.MTIC           `json:"mtic"`
	PrimaryDocument  *DocumentAssociation  `json:"primary_document"`
	RelatedDocuments []DocumentAssociation `json:"related_documents"`
	Session          *SessionInfo          `json:"session,omitempty"`
}

// Summary returns the chip with its primary document's template identity. A
// chip without document associations yields a nil primary, not an error.
// Every lookup is recorded as a search event.
func (s *Sessions) Summary(ctx context.Context, unitID string, meta CaptureMeta) (*UnitSummary, error) {
	unit, err := s.store.UnitByID(ctx, unitID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading mtic %s: %w", unitID, err)
	}

	s.registry.RecordSearch(ctx, unitID, meta)

	links, err := s.store.UnitDocuments(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("reading documents for mtic %s: %w", unitID, err)
	}

	summary := &UnitSummary{Unit: unit}
	for _, link := range links {
		if link.IsPrimary {
			identity := templateIdentity(link)
			summary.PrimaryDocument = &identity
			break
		}
	}
	return summary, nil
}

// Details returns the chip with its primary document, all related documents
// and the session the primary was captured in. A chip with no associations
// yields a nil primary and an empty related list.
func (s *Sessions) Details(ctx context.Context, unitID string, meta CaptureMeta) (*UnitDetails, error) {
	unit, err := s.store.UnitByID(ctx, unitID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading mtic %s: %w", unitID, err)
	}

	s.registry.RecordSearch(ctx, unitID, meta)

	links, err := s.store.UnitDocuments(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("reading documents for mtic %s: %w", unitID, err)
	}

	details := &UnitDetails{
		Unit:             unit,
		RelatedDocuments: []DocumentAssociation{},
	}
	for _, link := range links {
		assoc := DocumentAssociation{
			TemplateIdentity: templateIdentity(link),
			MTICSessionID:    link.MTICSessionID,
			LinkedAt:         link.CreatedAt,
		}
		if link.IsPrimary {
			details.PrimaryDocument = &assoc
			details.Session = sessionInfo(link.MTICSession)
		} else {
			details.RelatedDocuments = append(details.RelatedDocuments, assoc)
		}
	}
	return details, nil
}

func templateIdentity(link model.MTICDocument) TemplateIdentity {
	return TemplateIdentity{
		DocumentID:         link.DocumentID,
		DocumentUID:        link.Document.UID,
		DocumentTemplateID: link.Document.DocumentTemplateID,
		TemplateName:       link.Document.DocumentTemplate.Name,
	}
}

func sessionInfo(session model.MTICSession) *SessionInfo {
	if session.ID == "" {
		return nil
	}
	return &SessionInfo{
		SessionID:     session.ID,
		MTICReaderID:  session.MTICReaderID,
		Lat:           session.Lat,
		Lon:           session.Lon,
		StartDateTime: session.StartDateTime,
		EndDateTime:   session.EndDateTime,
	}
}
