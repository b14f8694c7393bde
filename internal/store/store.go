// Package store holds the gorm-backed implementations of the store
// interfaces consumed by the claims resolver, the identity provider and the
// mtic engines.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/model"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/mtic"
)

// Store wraps a gorm database handle.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// uniqueViolation reports whether err is a postgres unique-constraint
// violation, optionally restricted to one named constraint.
func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return constraint == "" || pgErr.ConstraintName == constraint
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// --- claims.HierarchyStore ---

// UserBySubject loads the user for an identity-provider subject id with the
// active default tenant membership and its org memberships attached.
func (s *Store) UserBySubject(ctx context.Context, subjectUID string) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Preload("DefaultTenantUser", "is_active = ?", true).
		Preload("DefaultTenantUser.Tenant").
		Preload("DefaultTenantUser.TenantOrgUsers").
		Where("uid = ?", subjectUID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, claims.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// --- identity.RecordStore ---

// SaveSubjectClaims upserts the provider's claims record for a subject in a
// single statement.
func (s *Store) SaveSubjectClaims(ctx context.Context, subjectUID string, payload string, version int) error {
	record := model.SubjectClaims{
		SubjectUID: subjectUID,
		Payload:    payload,
		Version:    version,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_uid"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "version", "updated_at"}),
		}).
		Create(&record).Error
}

func (s *Store) SubjectClaims(ctx context.Context, subjectUID string) (string, bool, error) {
	var record model.SubjectClaims
	err := s.db.WithContext(ctx).Where("subject_uid = ?", subjectUID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.Payload, true, nil
}

func (s *Store) ClearSubjectClaims(ctx context.Context, subjectUID string) error {
	return s.db.WithContext(ctx).
		Where("subject_uid = ?", subjectUID).
		Delete(&model.SubjectClaims{}).Error
}

// --- mtic.Store ---

func (s *Store) ReaderByID(ctx context.Context, id string) (*model.MTICReader, error) {
	var reader model.MTICReader
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&reader).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mtic.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reader, nil
}

func (s *Store) CreateReader(ctx context.Context, reader *model.MTICReader) error {
	err := s.db.WithContext(ctx).Create(reader).Error
	if uniqueViolation(err, "") {
		return mtic.ErrDuplicate
	}
	return err
}

func (s *Store) TenantMembershipExists(ctx context.Context, tenantID, tenantUserID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.TenantUser{}).
		Where("tenant_id = ? AND id = ? AND is_active = ?", tenantID, tenantUserID, true).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) UnitByID(ctx context.Context, id string) (*model.MTIC, error) {
	var unit model.MTIC
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mtic.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// CreateUnitWithEvent inserts the unit and its registration event in one
// transaction. A duplicate unit id rolls the whole step back, so the log and
// the unit table cannot diverge.
func (s *Store) CreateUnitWithEvent(ctx context.Context, unit *model.MTIC, event *model.MTICLog) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(unit).Error; err != nil {
			return err
		}
		return tx.Create(event).Error
	})
	if uniqueViolation(err, "") {
		return mtic.ErrDuplicate
	}
	return err
}

func (s *Store) AppendEvent(ctx context.Context, event *model.MTICLog) error {
	return s.db.WithContext(ctx).Create(event).Error
}

func (s *Store) CreateSession(ctx context.Context, session *model.MTICSession) error {
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *Store) SessionByID(ctx context.Context, id string) (*model.MTICSession, error) {
	var session model.MTICSession
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mtic.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// CloseSession sets the end timestamp on the row matching the full
// open-and-owned predicate. Two racing closers cannot both match.
func (s *Store) CloseSession(ctx context.Context, sessionID string, operatorTenantUserID uint, end time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&model.MTICSession{}).
		Where("id = ? AND tenant_user_id = ? AND end_date_time IS NULL", sessionID, operatorTenantUserID).
		Update("end_date_time", end)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (s *Store) DocumentByID(ctx context.Context, id uint) (*model.Document, error) {
	var document model.Document
	err := s.db.WithContext(ctx).First(&document, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, mtic.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &document, nil
}

// CreateUnitDocuments writes the batch row by row inside one transaction so
// a primary conflict anywhere in it rolls every link back, and the error can
// still name the unit that collided.
func (s *Store) CreateUnitDocuments(ctx context.Context, links []model.MTICDocument) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range links {
			if err := tx.Create(&links[i]).Error; err != nil {
				if uniqueViolation(err, "uniq_mtic_primary_document") {
					return fmt.Errorf("mtic %s: %w", links[i].MTICID, mtic.ErrPrimaryDocumentExists)
				}
				return err
			}
		}
		return nil
	})
}

func (s *Store) UnitDocuments(ctx context.Context, unitID string) ([]model.MTICDocument, error) {
	var links []model.MTICDocument
	err := s.db.WithContext(ctx).
		Preload("Document").
		Preload("Document.DocumentTemplate").
		Preload("MTICSession").
		Where("mtic_id = ?", unitID).
		Order("created_at").
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}
