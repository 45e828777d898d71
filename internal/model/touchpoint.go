package model

import (
	"time"

	"gorm.io/datatypes"
)

// Touchpoint directions
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Touchpoint channels
const (
	ChannelEmail    = "email"
	ChannelCall     = "call"
	ChannelLinkedIn = "linkedin"
	ChannelMeeting  = "meeting"
)

// Inferable touchpoint outcomes, one per engagement timestamp. Listed here in
// ascending priority order; InferredOutcome in the engine picks the highest
// populated one. Any other outcome value is caller-supplied and is never
// overwritten by inference.
const (
	OutcomeSent      = "sent"
	OutcomeDelivered = "delivered"
	OutcomeBounced   = "bounced"
	OutcomeOpened    = "opened"
	OutcomeClicked   = "clicked"
	OutcomeReplied   = "replied"
)

// Touchpoint represents one communication event inside a conversation. The
// engagement timestamps are set by delivery/tracking collaborators; outcome
// is derived from them unless explicitly supplied.
type Touchpoint struct {
	ID             string         `json:"id" gorm:"primaryKey;type:text"`
	ConversationID string         `json:"conversation_id" gorm:"type:text;index;not null" validate:"required"`
	Conversation   *Conversation  `json:"-" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
	Channel        string         `json:"channel,omitempty" gorm:"type:text;default:email"`
	Direction      string         `json:"direction,omitempty" gorm:"type:text;default:outbound" validate:"omitempty,oneof=inbound outbound"`
	Subject        string         `json:"subject,omitempty" gorm:"type:text"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	OpenedAt       *time.Time     `json:"opened_at,omitempty"`
	ClickedAt      *time.Time     `json:"clicked_at,omitempty"`
	RepliedAt      *time.Time     `json:"replied_at,omitempty"`
	BouncedAt      *time.Time     `json:"bounced_at,omitempty"`
	Outcome        string         `json:"outcome,omitempty" gorm:"type:text"`
	Metadata       datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"` // Opaque document, not interpreted
	CreatedAt      time.Time      `json:"created_at,omitempty" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for the Touchpoint model.
func (Touchpoint) TableName() string {
	return "touchpoints"
}

// IsResponse reports whether the touchpoint counts toward a conversation's
// response aggregate: an inbound touchpoint carrying a reply timestamp.
func (t Touchpoint) IsResponse() bool {
	return t.Direction == DirectionInbound && t.RepliedAt != nil
}
