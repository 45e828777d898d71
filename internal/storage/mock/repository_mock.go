package mock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/storage"
)

// --- TxRunner Mock ---

// TxRunnerMock mocks the TxRunner interface. By default WithTx simply runs
// fn with the same context; register an expectation to override.
type TxRunnerMock struct {
	mock.Mock
}

// WithTx mocks the WithTx method
func (m *TxRunnerMock) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	args := m.Called(ctx, fn)
	if args.Error(0) != nil {
		return args.Error(0)
	}
	return fn(ctx)
}

// --- CompanyRepo Mock ---

// CompanyRepoMock mocks the CompanyRepo interface
type CompanyRepoMock struct {
	mock.Mock
}

// Insert mocks the Insert method
func (m *CompanyRepoMock) Insert(ctx context.Context, company *model.Company) error {
	args := m.Called(ctx, company)
	return args.Error(0)
}

// Update mocks the Update method
func (m *CompanyRepoMock) Update(ctx context.Context, company *model.Company) error {
	args := m.Called(ctx, company)
	return args.Error(0)
}

// Delete mocks the Delete method
func (m *CompanyRepoMock) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// AdjustCounters mocks the AdjustCounters method
func (m *CompanyRepoMock) AdjustCounters(ctx context.Context, id string, contactDelta, activeDelta int) error {
	args := m.Called(ctx, id, contactDelta, activeDelta)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *CompanyRepoMock) FindByID(ctx context.Context, id string) (*model.Company, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Company), args.Error(1)
}

// ListIDs mocks the ListIDs method
func (m *CompanyRepoMock) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Close mocks the Close method
func (m *CompanyRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ContactRepo Mock ---

// ContactRepoMock mocks the ContactRepo interface
type ContactRepoMock struct {
	mock.Mock
}

// Insert mocks the Insert method
func (m *ContactRepoMock) Insert(ctx context.Context, contact *model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

// Update mocks the Update method
func (m *ContactRepoMock) Update(ctx context.Context, contact *model.Contact) error {
	args := m.Called(ctx, contact)
	return args.Error(0)
}

// Delete mocks the Delete method
func (m *ContactRepoMock) Delete(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// ApplyEngagement mocks the ApplyEngagement method
func (m *ContactRepoMock) ApplyEngagement(ctx context.Context, id string, touchpointDelta int, engagedAt *time.Time) error {
	args := m.Called(ctx, id, touchpointDelta, engagedAt)
	return args.Error(0)
}

// FindByID mocks the FindByID method
func (m *ContactRepoMock) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Contact), args.Error(1)
}

// FindByCompany mocks the FindByCompany method
func (m *ContactRepoMock) FindByCompany(ctx context.Context, companyID string) ([]model.Contact, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

// Close mocks the Close method
func (m *ContactRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ConversationRepo Mock ---

// ConversationRepoMock mocks the ConversationRepo interface
type ConversationRepoMock struct {
	mock.Mock
}

// Insert mocks the Insert method
func (m *ConversationRepoMock) Insert(ctx context.Context, conversation *model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

// Update mocks the Update method
func (m *ConversationRepoMock) Update(ctx context.Context, conversation *model.Conversation) error {
	args := m.Called(ctx, conversation)
	return args.Error(0)
}

// FindForUpdate mocks the FindForUpdate method
func (m *ConversationRepoMock) FindForUpdate(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// SetStatus mocks the SetStatus method
func (m *ConversationRepoMock) SetStatus(ctx context.Context, id, status string, closedAt *time.Time) error {
	args := m.Called(ctx, id, status, closedAt)
	return args.Error(0)
}

// Delete mocks the Delete method
func (m *ConversationRepoMock) Delete(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// ApplyTouchpointDeltas mocks the ApplyTouchpointDeltas method
func (m *ConversationRepoMock) ApplyTouchpointDeltas(ctx context.Context, id string, touchpointDelta int, lastTouchpointAt *time.Time, responseDelta int, lastResponseAt *time.Time) error {
	args := m.Called(ctx, id, touchpointDelta, lastTouchpointAt, responseDelta, lastResponseAt)
	return args.Error(0)
}

// CountActiveByContact mocks the CountActiveByContact method
func (m *ConversationRepoMock) CountActiveByContact(ctx context.Context, contactID string) (int, error) {
	args := m.Called(ctx, contactID)
	return args.Int(0), args.Error(1)
}

// FindByID mocks the FindByID method
func (m *ConversationRepoMock) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Conversation), args.Error(1)
}

// FindActiveByCompany mocks the FindActiveByCompany method
func (m *ConversationRepoMock) FindActiveByCompany(ctx context.Context, companyID string) ([]model.Conversation, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// FindOverdue mocks the FindOverdue method
func (m *ConversationRepoMock) FindOverdue(ctx context.Context, now time.Time) ([]model.Conversation, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Conversation), args.Error(1)
}

// Close mocks the Close method
func (m *ConversationRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- TouchpointRepo Mock ---

// TouchpointRepoMock mocks the TouchpointRepo interface
type TouchpointRepoMock struct {
	mock.Mock
}

// Insert mocks the Insert method
func (m *TouchpointRepoMock) Insert(ctx context.Context, touchpoint *model.Touchpoint) error {
	args := m.Called(ctx, touchpoint)
	return args.Error(0)
}

// FindForUpdate mocks the FindForUpdate method
func (m *TouchpointRepoMock) FindForUpdate(ctx context.Context, id string) (*model.Touchpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Touchpoint), args.Error(1)
}

// Save mocks the Save method
func (m *TouchpointRepoMock) Save(ctx context.Context, touchpoint *model.Touchpoint) error {
	args := m.Called(ctx, touchpoint)
	return args.Error(0)
}

// Delete mocks the Delete method
func (m *TouchpointRepoMock) Delete(ctx context.Context, id string) (*model.Touchpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Touchpoint), args.Error(1)
}

// FindByID mocks the FindByID method
func (m *TouchpointRepoMock) FindByID(ctx context.Context, id string) (*model.Touchpoint, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Touchpoint), args.Error(1)
}

// CountStages mocks the CountStages method
func (m *TouchpointRepoMock) CountStages(ctx context.Context, conversationID string) (*storage.EngagementStageCounts, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.EngagementStageCounts), args.Error(1)
}

// Close mocks the Close method
func (m *TouchpointRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- RelationshipRepo Mock ---

// RelationshipRepoMock mocks the RelationshipRepo interface
type RelationshipRepoMock struct {
	mock.Mock
}

// Insert mocks the Insert method
func (m *RelationshipRepoMock) Insert(ctx context.Context, relationship *model.Relationship) error {
	args := m.Called(ctx, relationship)
	return args.Error(0)
}

// Delete mocks the Delete method
func (m *RelationshipRepoMock) Delete(ctx context.Context, id string) (*model.Relationship, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Relationship), args.Error(1)
}

// FindByPair mocks the FindByPair method
func (m *RelationshipRepoMock) FindByPair(ctx context.Context, contactID, otherID string) (*model.Relationship, error) {
	args := m.Called(ctx, contactID, otherID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Relationship), args.Error(1)
}

// FindByContact mocks the FindByContact method
func (m *RelationshipRepoMock) FindByContact(ctx context.Context, contactID string) ([]model.Relationship, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Relationship), args.Error(1)
}

// FindColleagues mocks the FindColleagues method
func (m *RelationshipRepoMock) FindColleagues(ctx context.Context, contactID string) ([]model.Contact, error) {
	args := m.Called(ctx, contactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Contact), args.Error(1)
}

// Close mocks the Close method
func (m *RelationshipRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- OverviewRepo Mock ---

// OverviewRepoMock mocks the OverviewRepo interface
type OverviewRepoMock struct {
	mock.Mock
}

// Compute mocks the Compute method
func (m *OverviewRepoMock) Compute(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CompanyOverview), args.Error(1)
}

// Upsert mocks the Upsert method
func (m *OverviewRepoMock) Upsert(ctx context.Context, overview *model.CompanyOverview) error {
	args := m.Called(ctx, overview)
	return args.Error(0)
}

// Get mocks the Get method
func (m *OverviewRepoMock) Get(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	args := m.Called(ctx, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CompanyOverview), args.Error(1)
}

// Delete mocks the Delete method
func (m *OverviewRepoMock) Delete(ctx context.Context, companyID string) error {
	args := m.Called(ctx, companyID)
	return args.Error(0)
}

// Close mocks the Close method
func (m *OverviewRepoMock) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- ReconcileRepo Mock ---

// ReconcileRepoMock mocks the ReconcileRepo interface
type ReconcileRepoMock struct {
	mock.Mock
}

// RecountConversations mocks the RecountConversations method
func (m *ReconcileRepoMock) RecountConversations(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// RecountContacts mocks the RecountContacts method
func (m *ReconcileRepoMock) RecountContacts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// RecountCompanies mocks the RecountCompanies method
func (m *ReconcileRepoMock) RecountCompanies(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
