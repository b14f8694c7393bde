package model

import (
	"time"
)

// SubjectClaims is the identity provider's per-subject record of attached
// claims. Attaching is a single-row upsert so callers either see the full
// payload or none of it. Tokens already in the wild are unaffected; the
// record is only consulted at the next token issuance.
type SubjectClaims struct {
	SubjectUID string    `json:"subject_uid" gorm:"type:varchar(128);primaryKey"`
	Payload    string    `json:"payload" gorm:"type:jsonb"`
	Version    int       `json:"version" gorm:"not null;default:1"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
