package model

import (
	"time"

	"gorm.io/datatypes"
)

// Contact statuses
const (
	ContactStatusActive   = "active"
	ContactStatusInactive = "inactive"
	ContactStatusBounced  = "bounced"
)

// Contact represents a person at a company. A contact belongs to exactly one
// company; total_touchpoints counts touchpoints across all of the contact's
// conversations and is maintained by the engine.
type Contact struct {
	ID               string         `json:"id" gorm:"primaryKey;type:text"`
	CompanyID        string         `json:"company_id" gorm:"type:text;index;not null" validate:"required"`
	Company          *Company       `json:"-" gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	FirstName        string         `json:"first_name,omitempty" gorm:"type:text"`
	LastName         string         `json:"last_name,omitempty" gorm:"type:text"`
	Email            string         `json:"email,omitempty" gorm:"type:text;index" validate:"omitempty,email"`
	Title            string         `json:"title,omitempty" gorm:"type:text"`
	Status           string         `json:"status,omitempty" gorm:"type:text;default:active"`
	IsDecisionMaker  bool           `json:"is_decision_maker" gorm:"not null;default:false"`
	TotalTouchpoints int            `json:"total_touchpoints" gorm:"not null;default:0"`
	LastEngagedAt    *time.Time     `json:"last_engaged_at,omitempty"`
	Research         datatypes.JSON `json:"research,omitempty" gorm:"type:jsonb"` // Opaque enrichment payload
	CreatedAt        time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Contact model.
func (Contact) TableName() string {
	return "contacts"
}

// FullName joins the contact's name parts for display.
func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}
