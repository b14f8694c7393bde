package model

import (
	"time"
)

// MTIC represents a physical identification chip. Its identity is global and
// pre-provisioned at manufacture: a given ID is created at most once, ever,
// regardless of which tenant first encounters it. Rows are never deleted.
type MTIC struct {
	ID        string    `json:"id" gorm:"type:varchar(128);primaryKey"`
	UID       string    `json:"uid" gorm:"type:varchar(128);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MTICReader is a physical reader device registered to exactly one tenant.
// IsActive gates whether the reader may start capture sessions.
type MTICReader struct {
	ID        string    `json:"id" gorm:"type:varchar(128);primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"index;not null"`
	IsActive  bool      `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Tenant Tenant `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
}

// MTICSession is a bounded capture interval tied to one reader, one operator
// and a geolocation. EndDateTime stays null while the session is open; a
// session never reopens once closed.
type MTICSession struct {
	ID            string     `json:"id" gorm:"type:varchar(64);primaryKey"`
	MTICReaderID  string     `json:"mtic_reader_id" gorm:"type:varchar(128);index;not null"`
	TenantUserID  uint       `json:"tenant_user_id" gorm:"index;not null"`
	Lat           float64    `json:"lat"`
	Lon           float64    `json:"lon"`
	StartDateTime time.Time  `json:"start_date_time" gorm:"autoCreateTime"`
	EndDateTime   *time.Time `json:"end_date_time,omitempty"`

	// Relations
	MTICReader MTICReader `json:"mtic_reader,omitempty" gorm:"foreignKey:MTICReaderID"`
	TenantUser TenantUser `json:"tenant_user,omitempty" gorm:"foreignKey:TenantUserID"`
}

// MTICDocument associates a chip with a document captured during a session.
// At most one association per chip may be primary; the partial unique index
// backs that invariant at the store level so racing writers cannot both
// succeed.
type MTICDocument struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	MTICID        string    `json:"mtic_id" gorm:"type:varchar(128);index;not null;index:uniq_mtic_primary_document,unique,where:is_primary"`
	DocumentID    uint      `json:"document_id" gorm:"index;not null"`
	MTICSessionID string    `json:"mtic_session_id" gorm:"type:varchar(64);index;not null"`
	IsPrimary     bool      `json:"is_primary" gorm:"default:false"`
	CreatedAt     time.Time `json:"created_at"`

	// Relations
	MTIC        MTIC        `json:"mtic,omitempty" gorm:"foreignKey:MTICID"`
	Document    Document    `json:"document,omitempty" gorm:"foreignKey:DocumentID"`
	MTICSession MTICSession `json:"mtic_session,omitempty" gorm:"foreignKey:MTICSessionID"`
}

// MTICLog is the registry's append-only event log. Every chip creation and
// every public lookup lands here.
type MTICLog struct {
	ID           string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	MTICID       string    `json:"mtic_id" gorm:"type:varchar(128);index;not null"`
	MTICReaderID string    `json:"mtic_reader_id" gorm:"type:varchar(128);index"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Event        string    `json:"event" gorm:"type:varchar(50);not null"`
	CreatedAt    time.Time `json:"created_at"`
}
