package engine

import (
	"context"
	"time"

	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// Queries is the read-only surface exposed to collaborators. Everything here
// reads committed state; nothing mutates.
type Queries struct {
	conversations storage.ConversationRepo
	touchpoints   storage.TouchpointRepo
	relationships storage.RelationshipRepo
	overviews     storage.OverviewRepo
}

// NewQueries creates the read surface over the given repositories.
func NewQueries(
	conversations storage.ConversationRepo,
	touchpoints storage.TouchpointRepo,
	relationships storage.RelationshipRepo,
	overviews storage.OverviewRepo,
) *Queries {
	return &Queries{
		conversations: conversations,
		touchpoints:   touchpoints,
		relationships: relationships,
		overviews:     overviews,
	}
}

// ActiveConversations lists a company's active conversations, most recently
// touched first with never-touched conversations last.
func (q *Queries) ActiveConversations(ctx context.Context, companyID string) ([]model.Conversation, error) {
	return q.conversations.FindActiveByCompany(ctx, companyID)
}

// OverdueConversation is an active conversation whose scheduled follow-up
// time has passed, with the overdue span precomputed in whole days.
type OverdueConversation struct {
	model.Conversation
	DaysOverdue int `json:"days_overdue"`
}

// OverdueConversations lists active conversations with next_touchpoint_at at
// or before now, soonest-due first.
func (q *Queries) OverdueConversations(ctx context.Context, now time.Time) ([]OverdueConversation, error) {
	conversations, err := q.conversations.FindOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	overdue := make([]OverdueConversation, 0, len(conversations))
	for _, conversation := range conversations {
		entry := OverdueConversation{Conversation: conversation}
		if conversation.NextTouchpointAt != nil {
			entry.DaysOverdue = utils.DaysSince(*conversation.NextTouchpointAt, now)
		}
		overdue = append(overdue, entry)
	}
	return overdue, nil
}

// ContactRelationships lists every edge touching the contact, each
// normalized to report the other endpoint regardless of stored orientation.
func (q *Queries) ContactRelationships(ctx context.Context, contactID string) ([]model.ContactEdge, error) {
	relationships, err := q.relationships.FindByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	edges := make([]model.ContactEdge, 0, len(relationships))
	for _, relationship := range relationships {
		edges = append(edges, model.ContactEdge{
			EdgeID:     relationship.ID,
			OtherID:    relationship.Other(contactID),
			Type:       relationship.Type,
			Strength:   relationship.Strength,
			Confidence: relationship.Confidence,
			Verified:   relationship.Verified,
		})
	}
	return edges, nil
}

// Colleagues lists contacts linked to the given contact by a colleague edge
// at the same company.
func (q *Queries) Colleagues(ctx context.Context, contactID string) ([]model.Contact, error) {
	return q.relationships.FindColleagues(ctx, contactID)
}

// EngagementMetrics summarizes a conversation's touchpoints: totals, stage
// counts for outbound email, and the derived funnel rates as percentages.
type EngagementMetrics struct {
	ConversationID   string  `json:"conversation_id"`
	TotalTouchpoints int     `json:"total_touchpoints"`
	OutboundEmails   int     `json:"outbound_emails"`
	Delivered        int     `json:"delivered"`
	Opened           int     `json:"opened"`
	Clicked          int     `json:"clicked"`
	Replied          int     `json:"replied"`
	Bounced          int     `json:"bounced"`
	OpenRate         float64 `json:"open_rate"`
	ClickRate        float64 `json:"click_rate"`
	ReplyRate        float64 `json:"reply_rate"`
}

// ConversationEngagementMetrics computes EngagementMetrics for one
// conversation. Rates are 0 when there are no outbound emails.
func (q *Queries) ConversationEngagementMetrics(ctx context.Context, conversationID string) (*EngagementMetrics, error) {
	counts, err := q.touchpoints.CountStages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	metrics := &EngagementMetrics{
		ConversationID:   conversationID,
		TotalTouchpoints: counts.TotalTouchpoints,
		OutboundEmails:   counts.OutboundEmails,
		Delivered:        counts.Delivered,
		Opened:           counts.Opened,
		Clicked:          counts.Clicked,
		Replied:          counts.Replied,
		Bounced:          counts.Bounced,
	}
	if counts.OutboundEmails > 0 {
		denominator := float64(counts.OutboundEmails)
		metrics.OpenRate = float64(counts.Opened) / denominator * 100
		metrics.ClickRate = float64(counts.Clicked) / denominator * 100
		metrics.ReplyRate = float64(counts.Replied) / denominator * 100
	}
	return metrics, nil
}

// CompanyOverview returns the latest materialized rollup for a company.
func (q *Queries) CompanyOverview(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	return q.overviews.Get(ctx, companyID)
}
