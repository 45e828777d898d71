package storage

import (
	"context"
	"time"

	"github.com/stratalink/engagement-engine/internal/model"
)

// CompanyRepoAdapter adapts the PostgresRepo to the CompanyRepo interface
type CompanyRepoAdapter struct {
	postgres *PostgresRepo
}

// NewCompanyRepoAdapter creates a new company repository adapter
func NewCompanyRepoAdapter(postgres *PostgresRepo) CompanyRepo {
	return &CompanyRepoAdapter{postgres: postgres}
}

// Insert creates a company
func (a *CompanyRepoAdapter) Insert(ctx context.Context, company *model.Company) error {
	return a.postgres.InsertCompany(ctx, company)
}

// Update updates a company's mutable fields
func (a *CompanyRepoAdapter) Update(ctx context.Context, company *model.Company) error {
	return a.postgres.UpdateCompany(ctx, company)
}

// Delete removes a company
func (a *CompanyRepoAdapter) Delete(ctx context.Context, id string) error {
	return a.postgres.DeleteCompany(ctx, id)
}

// AdjustCounters applies aggregate counter deltas to a company
func (a *CompanyRepoAdapter) AdjustCounters(ctx context.Context, id string, contactDelta, activeDelta int) error {
	return a.postgres.AdjustCompanyCounters(ctx, id, contactDelta, activeDelta)
}

// FindByID finds a company by ID
func (a *CompanyRepoAdapter) FindByID(ctx context.Context, id string) (*model.Company, error) {
	return a.postgres.FindCompanyByID(ctx, id)
}

// ListIDs lists every company ID
func (a *CompanyRepoAdapter) ListIDs(ctx context.Context) ([]string, error) {
	return a.postgres.ListCompanyIDs(ctx)
}

func (a *CompanyRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ContactRepoAdapter adapts the PostgresRepo to the ContactRepo interface
type ContactRepoAdapter struct {
	postgres *PostgresRepo
}

// NewContactRepoAdapter creates a new contact repository adapter
func NewContactRepoAdapter(postgres *PostgresRepo) ContactRepo {
	return &ContactRepoAdapter{postgres: postgres}
}

// Insert creates a contact
func (a *ContactRepoAdapter) Insert(ctx context.Context, contact *model.Contact) error {
	return a.postgres.InsertContact(ctx, contact)
}

// Update updates a contact's mutable fields
func (a *ContactRepoAdapter) Update(ctx context.Context, contact *model.Contact) error {
	return a.postgres.UpdateContact(ctx, contact)
}

// Delete removes a contact, returning the deleted row
func (a *ContactRepoAdapter) Delete(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.DeleteContact(ctx, id)
}

// ApplyEngagement applies touchpoint deltas and the engagement timestamp
func (a *ContactRepoAdapter) ApplyEngagement(ctx context.Context, id string, touchpointDelta int, engagedAt *time.Time) error {
	return a.postgres.ApplyContactEngagement(ctx, id, touchpointDelta, engagedAt)
}

// FindByID finds a contact by ID
func (a *ContactRepoAdapter) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	return a.postgres.FindContactByID(ctx, id)
}

// FindByCompany finds contacts by company ID
func (a *ContactRepoAdapter) FindByCompany(ctx context.Context, companyID string) ([]model.Contact, error) {
	return a.postgres.FindContactsByCompany(ctx, companyID)
}

func (a *ContactRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ConversationRepoAdapter adapts the PostgresRepo to the ConversationRepo interface
type ConversationRepoAdapter struct {
	postgres *PostgresRepo
}

// NewConversationRepoAdapter creates a new conversation repository adapter
func NewConversationRepoAdapter(postgres *PostgresRepo) ConversationRepo {
	return &ConversationRepoAdapter{postgres: postgres}
}

// Insert creates a conversation
func (a *ConversationRepoAdapter) Insert(ctx context.Context, conversation *model.Conversation) error {
	return a.postgres.InsertConversation(ctx, conversation)
}

// Update updates a conversation's mutable fields
func (a *ConversationRepoAdapter) Update(ctx context.Context, conversation *model.Conversation) error {
	return a.postgres.UpdateConversation(ctx, conversation)
}

// FindForUpdate loads a conversation under a row lock
func (a *ConversationRepoAdapter) FindForUpdate(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationForUpdate(ctx, id)
}

// SetStatus writes the status and, when provided, closed_at
func (a *ConversationRepoAdapter) SetStatus(ctx context.Context, id, status string, closedAt *time.Time) error {
	return a.postgres.SetConversationStatus(ctx, id, status, closedAt)
}

// Delete removes a conversation, returning the deleted row
func (a *ConversationRepoAdapter) Delete(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.DeleteConversation(ctx, id)
}

// ApplyTouchpointDeltas applies touchpoint aggregate deltas
func (a *ConversationRepoAdapter) ApplyTouchpointDeltas(ctx context.Context, id string, touchpointDelta int, lastTouchpointAt *time.Time, responseDelta int, lastResponseAt *time.Time) error {
	return a.postgres.ApplyTouchpointDeltas(ctx, id, touchpointDelta, lastTouchpointAt, responseDelta, lastResponseAt)
}

// CountActiveByContact counts a contact's active conversations
func (a *ConversationRepoAdapter) CountActiveByContact(ctx context.Context, contactID string) (int, error) {
	return a.postgres.CountActiveConversationsByContact(ctx, contactID)
}

// FindByID finds a conversation by ID
func (a *ConversationRepoAdapter) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return a.postgres.FindConversationByID(ctx, id)
}

// FindActiveByCompany lists a company's active conversations, most recently
// touched first
func (a *ConversationRepoAdapter) FindActiveByCompany(ctx context.Context, companyID string) ([]model.Conversation, error) {
	return a.postgres.FindActiveConversationsByCompany(ctx, companyID)
}

// FindOverdue lists active conversations whose follow-up time has passed
func (a *ConversationRepoAdapter) FindOverdue(ctx context.Context, now time.Time) ([]model.Conversation, error) {
	return a.postgres.FindOverdueConversations(ctx, now)
}

func (a *ConversationRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// TouchpointRepoAdapter adapts the PostgresRepo to the TouchpointRepo interface
type TouchpointRepoAdapter struct {
	postgres *PostgresRepo
}

// NewTouchpointRepoAdapter creates a new touchpoint repository adapter
func NewTouchpointRepoAdapter(postgres *PostgresRepo) TouchpointRepo {
	return &TouchpointRepoAdapter{postgres: postgres}
}

// Insert creates a touchpoint
func (a *TouchpointRepoAdapter) Insert(ctx context.Context, touchpoint *model.Touchpoint) error {
	return a.postgres.InsertTouchpoint(ctx, touchpoint)
}

// FindForUpdate loads a touchpoint under a row lock
func (a *TouchpointRepoAdapter) FindForUpdate(ctx context.Context, id string) (*model.Touchpoint, error) {
	return a.postgres.FindTouchpointForUpdate(ctx, id)
}

// Save persists the full current state of a touchpoint
func (a *TouchpointRepoAdapter) Save(ctx context.Context, touchpoint *model.Touchpoint) error {
	return a.postgres.SaveTouchpoint(ctx, touchpoint)
}

// Delete removes a touchpoint, returning the deleted row
func (a *TouchpointRepoAdapter) Delete(ctx context.Context, id string) (*model.Touchpoint, error) {
	return a.postgres.DeleteTouchpoint(ctx, id)
}

// FindByID finds a touchpoint by ID
func (a *TouchpointRepoAdapter) FindByID(ctx context.Context, id string) (*model.Touchpoint, error) {
	return a.postgres.FindTouchpointByID(ctx, id)
}

// CountStages aggregates a conversation's touchpoints by engagement stage
func (a *TouchpointRepoAdapter) CountStages(ctx context.Context, conversationID string) (*EngagementStageCounts, error) {
	return a.postgres.CountEngagementStages(ctx, conversationID)
}

func (a *TouchpointRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// RelationshipRepoAdapter adapts the PostgresRepo to the RelationshipRepo interface
type RelationshipRepoAdapter struct {
	postgres *PostgresRepo
}

// NewRelationshipRepoAdapter creates a new relationship repository adapter
func NewRelationshipRepoAdapter(postgres *PostgresRepo) RelationshipRepo {
	return &RelationshipRepoAdapter{postgres: postgres}
}

// Insert creates a relationship edge
func (a *RelationshipRepoAdapter) Insert(ctx context.Context, relationship *model.Relationship) error {
	return a.postgres.InsertRelationship(ctx, relationship)
}

// Delete removes a relationship edge, returning the deleted row
func (a *RelationshipRepoAdapter) Delete(ctx context.Context, id string) (*model.Relationship, error) {
	return a.postgres.DeleteRelationship(ctx, id)
}

// FindByPair finds the edge between two contacts in either orientation
func (a *RelationshipRepoAdapter) FindByPair(ctx context.Context, contactID, otherID string) (*model.Relationship, error) {
	return a.postgres.FindRelationshipByPair(ctx, contactID, otherID)
}

// FindByContact lists every edge touching a contact
func (a *RelationshipRepoAdapter) FindByContact(ctx context.Context, contactID string) ([]model.Relationship, error) {
	return a.postgres.FindRelationshipsByContact(ctx, contactID)
}

// FindColleagues lists same-company contacts linked by a colleague edge
func (a *RelationshipRepoAdapter) FindColleagues(ctx context.Context, contactID string) ([]model.Contact, error) {
	return a.postgres.FindColleagues(ctx, contactID)
}

func (a *RelationshipRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// OverviewRepoAdapter adapts the PostgresRepo to the OverviewRepo interface
type OverviewRepoAdapter struct {
	postgres *PostgresRepo
}

// NewOverviewRepoAdapter creates a new overview repository adapter
func NewOverviewRepoAdapter(postgres *PostgresRepo) OverviewRepo {
	return &OverviewRepoAdapter{postgres: postgres}
}

// Compute recomputes the rollup for one company from the base tables
func (a *OverviewRepoAdapter) Compute(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	return a.postgres.ComputeCompanyOverview(ctx, companyID)
}

// Upsert overwrites the stored rollup for a company
func (a *OverviewRepoAdapter) Upsert(ctx context.Context, overview *model.CompanyOverview) error {
	return a.postgres.UpsertCompanyOverview(ctx, overview)
}

// Get returns the latest materialized rollup
func (a *OverviewRepoAdapter) Get(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	return a.postgres.GetCompanyOverview(ctx, companyID)
}

// Delete removes a company's stored rollup
func (a *OverviewRepoAdapter) Delete(ctx context.Context, companyID string) error {
	return a.postgres.DeleteCompanyOverview(ctx, companyID)
}

func (a *OverviewRepoAdapter) Close(ctx context.Context) error {
	return a.postgres.Close(ctx)
}

// ReconcileRepoAdapter adapts the PostgresRepo to the ReconcileRepo interface
type ReconcileRepoAdapter struct {
	postgres *PostgresRepo
}

// NewReconcileRepoAdapter creates a new reconcile repository adapter
func NewReconcileRepoAdapter(postgres *PostgresRepo) ReconcileRepo {
	return &ReconcileRepoAdapter{postgres: postgres}
}

// RecountConversations rebuilds conversation aggregates from touchpoints
func (a *ReconcileRepoAdapter) RecountConversations(ctx context.Context) (int64, error) {
	return a.postgres.RecountConversationCounters(ctx)
}

// RecountContacts rebuilds contact aggregates from touchpoints
func (a *ReconcileRepoAdapter) RecountContacts(ctx context.Context) (int64, error) {
	return a.postgres.RecountContactCounters(ctx)
}

// RecountCompanies rebuilds company aggregates from contacts and conversations
func (a *ReconcileRepoAdapter) RecountCompanies(ctx context.Context) (int64, error) {
	return a.postgres.RecountCompanyCounters(ctx)
}

// Ensure adapters implement the interfaces
var _ CompanyRepo = (*CompanyRepoAdapter)(nil)
var _ ContactRepo = (*ContactRepoAdapter)(nil)
var _ ConversationRepo = (*ConversationRepoAdapter)(nil)
var _ TouchpointRepo = (*TouchpointRepoAdapter)(nil)
var _ RelationshipRepo = (*RelationshipRepoAdapter)(nil)
var _ OverviewRepo = (*OverviewRepoAdapter)(nil)
var _ ReconcileRepo = (*ReconcileRepoAdapter)(nil)
var _ TxRunner = (*PostgresRepo)(nil)
