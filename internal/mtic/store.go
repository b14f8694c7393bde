package mtic

import (
	"context"
	"time"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
)

// Store is the relational collaborator behind the chip registry and the
// session engine. Uniqueness is enforced by store constraints, not by
// check-then-act logic in the engines: creates report ErrDuplicate and the
// engines recover by re-reading.
type Store interface {
	// Readers
	ReaderByID(ctx context.Context, id string) (*model.MTICReader, error)
	CreateReader(ctx context.Context, reader *model.MTICReader) error
	// TenantMembershipExists reports whether the tenant user holds an active
	// membership in the given tenant.
	TenantMembershipExists(ctx context.Context, tenantID, tenantUserID uint) (bool, error)

	// Units
	UnitByID(ctx context.Context, id string) (*model.MTIC, error)
	// CreateUnitWithEvent creates the unit row and its registration event in
	// one transaction; neither may exist without the other.
	CreateUnitWithEvent(ctx context.Context, unit *model.MTIC, event *model.MTICLog) error
	AppendEvent(ctx context.Context, event *model.MTICLog) error

	// Sessions
	CreateSession(ctx context.Context, session *model.MTICSession) error
	SessionByID(ctx context.Context, id string) (*model.MTICSession, error)
	// CloseSession applies the open-and-owned-by-operator predicate and the
	// end timestamp in a single conditional update, returning whether a row
	// matched.
	CloseSession(ctx context.Context, sessionID string, operatorTenantUserID uint, end time.Time) (bool, error)

	// Documents
	DocumentByID(ctx context.Context, id uint) (*model.Document, error)
	// CreateUnitDocuments writes the whole batch of associations in one
	// transaction: either every link lands or none does. It reports
	// ErrPrimaryDocumentExists, naming the offending unit, when the partial
	// unique index rejects a second primary association.
	CreateUnitDocuments(ctx context.Context, links []model.MTICDocument) error
	// UnitDocuments returns all associations for a unit with document,
	// template and session data loaded.
	UnitDocuments(ctx context.Context, unitID string) ([]model.MTICDocument, error)
}
