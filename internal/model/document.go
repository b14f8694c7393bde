package model

import (
	"time"

	"gorm.io/gorm"
)

// DocumentConfig describes a kind of document a tenant can issue. Templates
// are versions of a config bound to a concrete field layout.
type DocumentConfig struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	TenantID  uint           `json:"tenant_id" gorm:"index;not null"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	DocType   string         `json:"doc_type" gorm:"type:varchar(50)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// DocumentTemplate binds a document config to a field configuration. The
// FieldConfig column holds the JSON-encoded field descriptors that documents
// instantiated from this template are validated against.
type DocumentTemplate struct {
	ID               uint           `json:"id" gorm:"primaryKey"`
	TenantID         uint           `json:"tenant_id" gorm:"index;not null"`
	DocumentConfigID uint           `json:"document_config_id" gorm:"index;not null"`
	Name             string         `json:"name" gorm:"type:varchar(100);not null"`
	FieldConfig      string         `json:"field_config" gorm:"type:jsonb"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	DocumentConfig DocumentConfig `json:"document_config,omitempty" gorm:"foreignKey:DocumentConfigID"`
}

// TenantOrgDoc authorizes a tenant org to instantiate documents from a
// template, with a permission level. One grant per (org, template) pair.
type TenantOrgDoc struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	TenantOrgID        uint           `json:"tenant_org_id" gorm:"not null;uniqueIndex:uniq_tenant_org_doc"`
	DocumentTemplateID uint           `json:"document_template_id" gorm:"not null;uniqueIndex:uniq_tenant_org_doc"`
	Permission         string         `json:"permission" gorm:"type:varchar(50);not null;default:'read'"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	TenantOrg        TenantOrg        `json:"tenant_org,omitempty" gorm:"foreignKey:TenantOrgID"`
	DocumentTemplate DocumentTemplate `json:"document_template,omitempty" gorm:"foreignKey:DocumentTemplateID"`
}

// Document is a record instantiated from a template, owned by a tenant org.
// DocumentFields holds the validated field values as JSON.
type Document struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	UID                string         `json:"uid" gorm:"type:varchar(128);index"`
	TenantOrgID        uint           `json:"tenant_org_id" gorm:"index;not null"`
	DocumentTemplateID uint           `json:"document_template_id" gorm:"index;not null"`
	DocumentFields     string         `json:"document_fields" gorm:"type:jsonb"`
	CreatedByID        uint           `json:"created_by_id" gorm:"index"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	TenantOrg        TenantOrg        `json:"tenant_org,omitempty" gorm:"foreignKey:TenantOrgID"`
	DocumentTemplate DocumentTemplate `json:"document_template,omitempty" gorm:"foreignKey:DocumentTemplateID"`
}
