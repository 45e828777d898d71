package model

import (
	"time"
)

// CompanyOverview is the read-optimized per-company rollup produced by the
// materializer. It is recomputed wholesale on an interval and overwritten;
// readers tolerate staleness up to one interval.
type CompanyOverview struct {
	CompanyID              string     `json:"company_id" gorm:"primaryKey;type:text"`
	ContactCount           int        `json:"contact_count" gorm:"not null;default:0"`
	DecisionMakerCount     int        `json:"decision_maker_count" gorm:"not null;default:0"`
	TotalConversations     int        `json:"total_conversations" gorm:"not null;default:0"`
	ActiveConversations    int        `json:"active_conversations" gorm:"not null;default:0"`
	PausedConversations    int        `json:"paused_conversations" gorm:"not null;default:0"`
	NurturingConversations int        `json:"nurturing_conversations" gorm:"not null;default:0"`
	ClosedConversations    int        `json:"closed_conversations" gorm:"not null;default:0"`
	WonConversations       int        `json:"won_conversations" gorm:"not null;default:0"`
	LostConversations      int        `json:"lost_conversations" gorm:"not null;default:0"`
	TotalTouchpoints       int        `json:"total_touchpoints" gorm:"not null;default:0"`
	TotalReplies           int        `json:"total_replies" gorm:"not null;default:0"`
	RelationshipCount      int        `json:"relationship_count" gorm:"not null;default:0"`
	LastTouchpointAt       *time.Time `json:"last_touchpoint_at,omitempty"`
	LastReplyAt            *time.Time `json:"last_reply_at,omitempty"`
	RefreshedAt            time.Time  `json:"refreshed_at"`
}

// TableName specifies the table name for the CompanyOverview model.
func (CompanyOverview) TableName() string {
	return "company_overviews"
}
