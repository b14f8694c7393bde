package model

import (
	"time"

	"gorm.io/gorm"
)

// User represents an identity-provider subject mapped to an internal account.
// The UID is assigned by the identity provider on first verification and never changes.
type User struct {
	ID                  uint           `json:"id" gorm:"primaryKey"`
	UID                 string         `json:"uid" gorm:"type:varchar(128);uniqueIndex;not null"`
	Email               string         `json:"email" gorm:"type:varchar(100);uniqueIndex"`
	Password            string         `json:"-" gorm:"type:varchar(255)"`
	Name                string         `json:"name" gorm:"type:varchar(100)"`
	DefaultTenantUserID *uint          `json:"default_tenant_user_id,omitempty" gorm:"index"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`

	DefaultTenantUser *TenantUser `json:"default_tenant_user,omitempty" gorm:"foreignKey:DefaultTenantUserID"`
}
