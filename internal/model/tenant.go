package model

import (
	"time"

	"gorm.io/gorm"
)

// Tenant represents a top-level customer organization. Any authenticated user
// may create one through self-service signup; the creator becomes its first
// administrator.
type Tenant struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"type:varchar(100);not null"`
	Website   string         `json:"website" gorm:"type:varchar(255)"`
	Logo      string         `json:"logo" gorm:"type:varchar(255)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
