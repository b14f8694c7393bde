package mtic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

// Event names recorded in the registry's append-only log.
const (
	EventCreate = "create"
	EventSearch = "search"
)

// UnitDescriptor is the id/uid pair a reader reports for one chip.
type UnitDescriptor struct {
	ID  string `json:"id" validate:"required"`
	UID string `json:"uid" validate:"required"`
}

// Validate checks the descriptor shape before it reaches the store.
func (d UnitDescriptor) Validate() error {
	if d.ID == "" || d.UID == "" {
		return ErrInvalidUnitDescriptor
	}
	return nil
}

// CaptureMeta carries the reader context of a registry operation, used for
// the event log.
type CaptureMeta struct {
	ReaderID string
	Lat      float64
	Lon      float64
}

// RegisterResult reports the outcome of a unit registration. Registration is
// idempotent but reported: Created distinguishes a fresh row from an existing
// one so callers can phrase their response, while both cases reference the
// same stored unit.
type RegisterResult struct {
	Created bool        `json:"created"`
	Unit    *model.MTIC `json:"unit"`
}

// Registry enforces global at-most-once identity for chips and per-tenant
// at-most-once registration for readers.
type Registry struct {
	store Store
	log   *zap.Logger
}

func NewRegistry(store Store, log *zap.Logger) *Registry {
	return &Registry{store: store, log: log}
}

// EnsureReader returns the reader for readerID, creating it bound to
// tenantID when absent. An existing reader is returned unchanged. When the
// reader belongs to a different tenant the operator must hold a membership in
// that tenant; the reader itself is never rebound.
func (r *Registry) EnsureReader(ctx context.Context, readerID string, tenantID, operatorTenantUserID uint) (*model.MTICReader, error) {
	reader, err := r.store.ReaderByID(ctx, readerID)
	if errors.Is(err, ErrNotFound) {
		reader = &model.MTICReader{
			ID:       readerID,
			TenantID: tenantID,
			IsActive: true,
		}
		err = r.store.CreateReader(ctx, reader)
		if errors.Is(err, ErrDuplicate) {
			// Lost the race to another caller; converge on its row.
			reader, err = r.store.ReaderByID(ctx, readerID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("ensuring reader %s: %w", readerID, err)
	}

	if !reader.IsActive {
		return nil, ErrReaderDeactivated
	}

	if reader.TenantID != tenantID {
		member, err := r.store.TenantMembershipExists(ctx, reader.TenantID, operatorTenantUserID)
		if err != nil {
			return nil, fmt.Errorf("checking membership for reader %s: %w", readerID, err)
		}
		if !member {
			return nil, ErrReaderAccessDenied
		}
	}

	return reader, nil
}

// RegisterUnit creates the chip identity and its registration event when the
// id is unseen, in one atomic step. A chip that already exists is returned
// as-is with Created=false; its fields are never overwritten.
func (r *Registry) RegisterUnit(ctx context.Context, descriptor UnitDescriptor, meta CaptureMeta) (*RegisterResult, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}

	unit := &model.MTIC{ID: descriptor.ID, UID: descriptor.UID}
	event := &model.MTICLog{
		ID:           uuid.New().String(),
		MTICID:       descriptor.ID,
		MTICReaderID: meta.ReaderID,
		Lat:          meta.Lat,
		Lon:          meta.Lon,
		Event:        EventCreate,
	}

	err := r.store.CreateUnitWithEvent(ctx, unit, event)
	if errors.Is(err, ErrDuplicate) {
		existing, readErr := r.store.UnitByID(ctx, descriptor.ID)
		if readErr != nil {
			return nil, fmt.Errorf("reading existing mtic %s: %w", descriptor.ID, readErr)
		}
		return &RegisterResult{Created: false, Unit: existing}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registering mtic %s: %w", descriptor.ID, err)
	}

	return &RegisterResult{Created: true, Unit: unit}, nil
}

// RecordSearch appends a search event for a chip lookup. Lookups are audited
// regardless of where the answer came from; a failed append is logged but
// does not fail the read.
func (r *Registry) RecordSearch(ctx context.Context, unitID string, meta CaptureMeta) {
	event := &model.MTICLog{
		ID:           uuid.New().String(),
		MTICID:       unitID,
		MTICReaderID: meta.ReaderID,
		Lat:          meta.Lat,
		Lon:          meta.Lon,
		Event:        EventSearch,
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.log.Error("Failed to append mtic search event",
			zap.String("mtic_id", unitID),
			zap.Error(err))
	}
}
