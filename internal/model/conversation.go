package model

import (
	"time"

	"gorm.io/datatypes"
)

// Conversation statuses. Terminal statuses stamp closed_at exactly once.
const (
	ConversationStatusActive    = "active"
	ConversationStatusPaused    = "paused"
	ConversationStatusClosed    = "closed"
	ConversationStatusWon       = "won"
	ConversationStatusLost      = "lost"
	ConversationStatusNurturing = "nurturing"
)

// ConversationStatuses lists every valid status.
var ConversationStatuses = []string{
	ConversationStatusActive,
	ConversationStatusPaused,
	ConversationStatusClosed,
	ConversationStatusWon,
	ConversationStatusLost,
	ConversationStatusNurturing,
}

// IsTerminalStatus reports whether status belongs to the terminal set
// {closed, won, lost}.
func IsTerminalStatus(status string) bool {
	switch status {
	case ConversationStatusClosed, ConversationStatusWon, ConversationStatusLost:
		return true
	}
	return false
}

// IsValidConversationStatus reports whether status is a known status.
func IsValidConversationStatus(status string) bool {
	for _, s := range ConversationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Conversation represents a dialogue thread with one contact at one company.
// The contact/company references are immutable after creation. The counter
// and timestamp fields are aggregates maintained by the engine.
type Conversation struct {
	ID                string         `json:"id" gorm:"primaryKey;type:text"`
	ContactID         string         `json:"contact_id" gorm:"type:text;index;not null" validate:"required"`
	Contact           *Contact       `json:"-" gorm:"foreignKey:ContactID;constraint:OnDelete:CASCADE"`
	CompanyID         string         `json:"company_id" gorm:"type:text;index;not null" validate:"required"`
	Company           *Company       `json:"-" gorm:"foreignKey:CompanyID;constraint:OnDelete:CASCADE"`
	Status            string         `json:"status,omitempty" gorm:"type:text;default:active" validate:"omitempty,oneof=active paused closed won lost nurturing"`
	QualificationTier string         `json:"qualification_tier,omitempty" gorm:"type:text"` // Supplied by the lead-scoring collaborator
	Outcome           string         `json:"outcome,omitempty" gorm:"type:text"`
	TouchpointCount   int            `json:"touchpoint_count" gorm:"not null;default:0"`
	ResponseCount     int            `json:"response_count" gorm:"not null;default:0"`
	LastTouchpointAt  *time.Time     `json:"last_touchpoint_at,omitempty"`
	LastResponseAt    *time.Time     `json:"last_response_at,omitempty"`
	NextTouchpointAt  *time.Time     `json:"next_touchpoint_at,omitempty" gorm:"index"` // Caller-scheduled follow-up
	ClosedAt          *time.Time     `json:"closed_at,omitempty"`                       // Stamped once on first terminal transition
	Context           datatypes.JSON `json:"context,omitempty" gorm:"type:jsonb"`       // Opaque document, not interpreted
	CreatedAt         time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Conversation model.
func (Conversation) TableName() string {
	return "conversations"
}
