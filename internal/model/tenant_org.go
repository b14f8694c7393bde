package model

import (
	"time"

	"gorm.io/gorm"
)

// TenantOrg is a node in a tenant-scoped organization tree, such as a
// department or a site. The tree is expressed through the self-referencing
// ParentID.
type TenantOrg struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	ParentID  *uint          `json:"parent_id,omitempty" gorm:"index"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Tenant   Tenant      `json:"tenant,omitempty" gorm:"foreignKey:TenantID"`
	Parent   *TenantOrg  `json:"parent,omitempty" gorm:"foreignKey:ParentID"`
	Children []TenantOrg `json:"children,omitempty" gorm:"foreignKey:ParentID"`
}

// TenantOrgUser grants a tenant user a permission level within one tenant org.
type TenantOrgUser struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	TenantOrgID  uint           `json:"tenant_org_id" gorm:"not null;uniqueIndex:uniq_tenant_org_user"`
	TenantUserID uint           `json:"tenant_user_id" gorm:"not null;uniqueIndex:uniq_tenant_org_user"`
	Permission   string         `json:"permission" gorm:"type:varchar(50);not null;default:'read'"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	TenantOrg  TenantOrg  `json:"tenant_org,omitempty" gorm:"foreignKey:TenantOrgID"`
	TenantUser TenantUser `json:"tenant_user,omitempty" gorm:"foreignKey:TenantUserID"`
}
