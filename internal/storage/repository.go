package storage

import (
	"context"
	"time"

	"github.com/stratalink/engagement-engine/internal/model"
)

// TxRunner runs a function inside a database transaction. Repo calls made
// with the context passed to fn join that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CompanyRepo defines company storage operations
type CompanyRepo interface {
	Insert(ctx context.Context, company *model.Company) error
	Update(ctx context.Context, company *model.Company) error
	Delete(ctx context.Context, id string) error
	AdjustCounters(ctx context.Context, id string, contactDelta, activeDelta int) error
	FindByID(ctx context.Context, id string) (*model.Company, error)
	ListIDs(ctx context.Context) ([]string, error)
	Close(ctx context.Context) error
}

// ContactRepo defines contact storage operations
type ContactRepo interface {
	Insert(ctx context.Context, contact *model.Contact) error
	Update(ctx context.Context, contact *model.Contact) error
	Delete(ctx context.Context, id string) (*model.Contact, error)
	ApplyEngagement(ctx context.Context, id string, touchpointDelta int, engagedAt *time.Time) error
	FindByID(ctx context.Context, id string) (*model.Contact, error)
	FindByCompany(ctx context.Context, companyID string) ([]model.Contact, error)
	Close(ctx context.Context) error
}

// ConversationRepo defines conversation storage operations
type ConversationRepo interface {
	Insert(ctx context.Context, conversation *model.Conversation) error
	Update(ctx context.Context, conversation *model.Conversation) error
	FindForUpdate(ctx context.Context, id string) (*model.Conversation, error)
	SetStatus(ctx context.Context, id, status string, closedAt *time.Time) error
	Delete(ctx context.Context, id string) (*model.Conversation, error)
	ApplyTouchpointDeltas(ctx context.Context, id string, touchpointDelta int, lastTouchpointAt *time.Time, responseDelta int, lastResponseAt *time.Time) error
	CountActiveByContact(ctx context.Context, contactID string) (int, error)
	FindByID(ctx context.Context, id string) (*model.Conversation, error)
	FindActiveByCompany(ctx context.Context, companyID string) ([]model.Conversation, error)
	FindOverdue(ctx context.Context, now time.Time) ([]model.Conversation, error)
	Close(ctx context.Context) error
}

// TouchpointRepo defines touchpoint storage operations
type TouchpointRepo interface {
	Insert(ctx context.Context, touchpoint *model.Touchpoint) error
	FindForUpdate(ctx context.Context, id string) (*model.Touchpoint, error)
	Save(ctx context.Context, touchpoint *model.Touchpoint) error
	Delete(ctx context.Context, id string) (*model.Touchpoint, error)
	FindByID(ctx context.Context, id string) (*model.Touchpoint, error)
	CountStages(ctx context.Context, conversationID string) (*EngagementStageCounts, error)
	Close(ctx context.Context) error
}

// RelationshipRepo defines relationship storage operations
type RelationshipRepo interface {
	Insert(ctx context.Context, relationship *model.Relationship) error
	Delete(ctx context.Context, id string) (*model.Relationship, error)
	FindByPair(ctx context.Context, contactID, otherID string) (*model.Relationship, error)
	FindByContact(ctx context.Context, contactID string) ([]model.Relationship, error)
	FindColleagues(ctx context.Context, contactID string) ([]model.Contact, error)
	Close(ctx context.Context) error
}

// OverviewRepo defines company overview storage operations
type OverviewRepo interface {
	Compute(ctx context.Context, companyID string) (*model.CompanyOverview, error)
	Upsert(ctx context.Context, overview *model.CompanyOverview) error
	Get(ctx context.Context, companyID string) (*model.CompanyOverview, error)
	Delete(ctx context.Context, companyID string) error
	Close(ctx context.Context) error
}

// ReconcileRepo defines the offline aggregate recount operations
type ReconcileRepo interface {
	RecountConversations(ctx context.Context) (int64, error)
	RecountContacts(ctx context.Context) (int64, error)
	RecountCompanies(ctx context.Context) (int64, error)
}
