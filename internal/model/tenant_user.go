package model

import (
	"time"

	"gorm.io/gorm"
)

// TenantUser represents a user's membership within a tenant, carrying the role
// used for claims resolution. A user holds at most one membership per tenant.
type TenantUser struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"not null;uniqueIndex:uniq_tenant_user"`
	UserID    uint           `json:"user_id" gorm:"not null;uniqueIndex:uniq_tenant_user"`
	Role      string         `json:"role" gorm:"type:varchar(50);not null;default:'individual'"`
	IsActive  bool           `json:"is_active" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	User           User            `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Tenant         Tenant          `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	TenantOrgUsers []TenantOrgUser `json:"tenant_org_users,omitempty" gorm:"foreignKey:TenantUserID"`
}
