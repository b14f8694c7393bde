package mtic

import "errors"

var (
	// ErrReaderDeactivated is fatal to the calling workflow: a deactivated
	// reader cannot start sessions or register chips.
	ErrReaderDeactivated = errors.New("mtic reader has been deactivated")

	// ErrReaderAccessDenied is returned when a reader belongs to another
	// tenant and the operator holds no membership there. Readers are never
	// reassigned between tenants.
	ErrReaderAccessDenied = errors.New("operator has no access to the reader's tenant")

	// ErrInvalidUnitDescriptor is returned when a unit entry is not a string
	// id/uid pair.
	ErrInvalidUnitDescriptor = errors.New("mtic descriptor must carry string id and uid values")

	// ErrUnitNotFound is returned by lookups for unknown chips.
	ErrUnitNotFound = errors.New("mtic does not exist")

	// ErrSessionNotFound deliberately covers both an unknown or already
	// closed session and one owned by a different operator, so callers learn
	// nothing about sessions they do not own.
	ErrSessionNotFound = errors.New("mtic session does not exist or has already ended")

	// ErrDocumentNotFound is returned when a link targets an unknown document.
	ErrDocumentNotFound = errors.New("document does not exist")

	// ErrPrimaryDocumentExists rejects a second primary association for a
	// chip. The existing primary is left untouched.
	ErrPrimaryDocumentExists = errors.New("mtic already has a primary document")

	// ErrDuplicate is the store-level signal for a uniqueness violation.
	// Engines recover from it by re-reading the existing row.
	ErrDuplicate = errors.New("record already exists")

	// ErrNotFound is the store-level absent-row signal.
	ErrNotFound = errors.New("record not found")
)
