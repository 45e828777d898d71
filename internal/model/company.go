package model

import (
	"time"

	"gorm.io/datatypes"
)

// Company statuses
const (
	CompanyStatusActive   = "active"
	CompanyStatusInactive = "inactive"
)

// Company represents an account/organization being worked.
// total_contacts and active_conversations are aggregate counters maintained
// by the engine; they always equal a live recount of the dependent rows.
type Company struct {
	ID                  string         `json:"id" gorm:"primaryKey;type:text"`
	Name                string         `json:"name" gorm:"type:text" validate:"required"`
	Domain              string         `json:"domain" gorm:"type:text;uniqueIndex" validate:"required"`
	Tier                string         `json:"tier,omitempty" gorm:"type:text"`   // e.g. strategic, mid-market, smb
	Status              string         `json:"status,omitempty" gorm:"type:text;default:active"`
	TotalContacts       int            `json:"total_contacts" gorm:"not null;default:0"`
	ActiveConversations int            `json:"active_conversations" gorm:"not null;default:0"`
	Metadata            datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"` // Opaque document, not interpreted
	CreatedAt           time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt           time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Company model.
func (Company) TableName() string {
	return "companies"
}
