package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// memStore is an in-memory stand-in for the Postgres repositories. WithTx
// serializes pipelines under one lock the way row locks and the unique pair
// index do in the real store, which lets the concurrency tests assert exact
// counter values.
type memStore struct {
	mu sync.Mutex

	companies     map[string]*model.Company
	contacts      map[string]*model.Contact
	conversations map[string]*model.Conversation
	touchpoints   map[string]*model.Touchpoint
	relationships map[string]*model.Relationship
	overviews     map[string]*model.CompanyOverview

	// conflictsToInject makes the next N transactions fail with ErrConflict
	// before fn runs, to exercise the dispatcher's retry loop.
	conflictsToInject int
}

func newMemStore() *memStore {
	return &memStore{
		companies:     make(map[string]*model.Company),
		contacts:      make(map[string]*model.Contact),
		conversations: make(map[string]*model.Conversation),
		touchpoints:   make(map[string]*model.Touchpoint),
		relationships: make(map[string]*model.Relationship),
		overviews:     make(map[string]*model.CompanyOverview),
	}
}

func (s *memStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conflictsToInject > 0 {
		s.conflictsToInject--
		return fmt.Errorf("%w: injected contention", apperrors.ErrConflict)
	}
	return fn(ctx)
}

// --- CompanyRepo ---

func (s *memStore) Insert(ctx context.Context, company *model.Company) error {
	row := *company
	s.companies[company.ID] = &row
	return nil
}

func (s *memStore) Update(ctx context.Context, company *model.Company) error {
	existing, ok := s.companies[company.ID]
	if !ok {
		return fmt.Errorf("%w: company %s", apperrors.ErrNotFound, company.ID)
	}
	existing.Name = company.Name
	existing.Domain = company.Domain
	existing.Tier = company.Tier
	existing.Status = company.Status
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.companies[id]; !ok {
		return fmt.Errorf("%w: company %s", apperrors.ErrNotFound, id)
	}
	delete(s.companies, id)
	for contactID, contact := range s.contacts {
		if contact.CompanyID == id {
			s.cascadeContact(contactID)
		}
	}
	return nil
}

func (s *memStore) AdjustCounters(ctx context.Context, id string, contactDelta, activeDelta int) error {
	company, ok := s.companies[id]
	if !ok {
		return nil
	}
	company.TotalContacts = maxInt(company.TotalContacts+contactDelta, 0)
	company.ActiveConversations = maxInt(company.ActiveConversations+activeDelta, 0)
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id string) (*model.Company, error) {
	company, ok := s.companies[id]
	if !ok {
		return nil, fmt.Errorf("%w: company %s", apperrors.ErrNotFound, id)
	}
	row := *company
	return &row, nil
}

func (s *memStore) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.companies))
	for id := range s.companies {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *memStore) Close(ctx context.Context) error { return nil }

// contactStore, conversationStore, touchpointStore, relationshipStore and
// overviewStore give each repo interface its own method set over the shared
// memStore, mirroring how the adapters split PostgresRepo.
type contactStore struct{ *memStore }

func (s contactStore) Insert(ctx context.Context, contact *model.Contact) error {
	row := *contact
	s.contacts[contact.ID] = &row
	return nil
}

func (s contactStore) Update(ctx context.Context, contact *model.Contact) error {
	existing, ok := s.contacts[contact.ID]
	if !ok {
		return fmt.Errorf("%w: contact %s", apperrors.ErrNotFound, contact.ID)
	}
	existing.FirstName = contact.FirstName
	existing.LastName = contact.LastName
	existing.Email = contact.Email
	existing.Title = contact.Title
	existing.Status = contact.Status
	existing.IsDecisionMaker = contact.IsDecisionMaker
	return nil
}

func (s contactStore) Delete(ctx context.Context, id string) (*model.Contact, error) {
	existing, ok := s.contacts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contact %s", apperrors.ErrNotFound, id)
	}
	row := *existing
	s.cascadeContact(id)
	return &row, nil
}

func (s *memStore) cascadeContact(id string) {
	delete(s.contacts, id)
	for conversationID, conversation := range s.conversations {
		if conversation.ContactID == id {
			s.cascadeConversation(conversationID)
		}
	}
	for edgeID, edge := range s.relationships {
		if edge.ContactAID == id || edge.ContactBID == id {
			delete(s.relationships, edgeID)
		}
	}
}

func (s *memStore) cascadeConversation(id string) {
	delete(s.conversations, id)
	for touchpointID, touchpoint := range s.touchpoints {
		if touchpoint.ConversationID == id {
			delete(s.touchpoints, touchpointID)
		}
	}
}

func (s contactStore) ApplyEngagement(ctx context.Context, id string, touchpointDelta int, engagedAt *time.Time) error {
	contact, ok := s.contacts[id]
	if !ok {
		return nil
	}
	contact.TotalTouchpoints = maxInt(contact.TotalTouchpoints+touchpointDelta, 0)
	if engagedAt != nil {
		contact.LastEngagedAt = engagedAt
	}
	return nil
}

func (s contactStore) FindByID(ctx context.Context, id string) (*model.Contact, error) {
	contact, ok := s.contacts[id]
	if !ok {
		return nil, fmt.Errorf("%w: contact %s", apperrors.ErrNotFound, id)
	}
	row := *contact
	return &row, nil
}

func (s contactStore) FindByCompany(ctx context.Context, companyID string) ([]model.Contact, error) {
	var out []model.Contact
	for _, contact := range s.contacts {
		if contact.CompanyID == companyID {
			out = append(out, *contact)
		}
	}
	return out, nil
}

func (s contactStore) Close(ctx context.Context) error { return nil }

type conversationStore struct{ *memStore }

func (s conversationStore) Insert(ctx context.Context, conversation *model.Conversation) error {
	row := *conversation
	s.conversations[conversation.ID] = &row
	return nil
}

func (s conversationStore) Update(ctx context.Context, conversation *model.Conversation) error {
	existing, ok := s.conversations[conversation.ID]
	if !ok {
		return fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, conversation.ID)
	}
	existing.QualificationTier = conversation.QualificationTier
	existing.Outcome = conversation.Outcome
	if conversation.NextTouchpointAt != nil {
		existing.NextTouchpointAt = conversation.NextTouchpointAt
	}
	// The real repository hands the stored row back in the caller's
	// struct; status stays whatever is stored.
	*conversation = *existing
	return nil
}

func (s conversationStore) FindForUpdate(ctx context.Context, id string) (*model.Conversation, error) {
	return s.findConversation(id)
}

func (s conversationStore) FindByID(ctx context.Context, id string) (*model.Conversation, error) {
	return s.findConversation(id)
}

func (s *memStore) findConversation(id string) (*model.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, id)
	}
	row := *conversation
	return &row, nil
}

func (s conversationStore) SetStatus(ctx context.Context, id, status string, closedAt *time.Time) error {
	conversation, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, id)
	}
	conversation.Status = status
	if closedAt != nil {
		conversation.ClosedAt = closedAt
	}
	return nil
}

func (s conversationStore) Delete(ctx context.Context, id string) (*model.Conversation, error) {
	existing, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, id)
	}
	row := *existing
	s.cascadeConversation(id)
	return &row, nil
}

func (s conversationStore) ApplyTouchpointDeltas(ctx context.Context, id string, touchpointDelta int, lastTouchpointAt *time.Time, responseDelta int, lastResponseAt *time.Time) error {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil
	}
	conversation.TouchpointCount = maxInt(conversation.TouchpointCount+touchpointDelta, 0)
	conversation.ResponseCount = maxInt(conversation.ResponseCount+responseDelta, 0)
	if lastTouchpointAt != nil {
		conversation.LastTouchpointAt = lastTouchpointAt
	}
	if lastResponseAt != nil {
		conversation.LastResponseAt = lastResponseAt
	}
	return nil
}

func (s conversationStore) CountActiveByContact(ctx context.Context, contactID string) (int, error) {
	count := 0
	for _, conversation := range s.conversations {
		if conversation.ContactID == contactID && conversation.Status == model.ConversationStatusActive {
			count++
		}
	}
	return count, nil
}

func (s conversationStore) FindActiveByCompany(ctx context.Context, companyID string) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conversation := range s.conversations {
		if conversation.CompanyID == companyID && conversation.Status == model.ConversationStatusActive {
			out = append(out, *conversation)
		}
	}
	return out, nil
}

func (s conversationStore) FindOverdue(ctx context.Context, now time.Time) ([]model.Conversation, error) {
	var out []model.Conversation
	for _, conversation := range s.conversations {
		if conversation.Status == model.ConversationStatusActive &&
			conversation.NextTouchpointAt != nil && !conversation.NextTouchpointAt.After(now) {
			out = append(out, *conversation)
		}
	}
	return out, nil
}

func (s conversationStore) Close(ctx context.Context) error { return nil }

type touchpointStore struct{ *memStore }

func (s touchpointStore) Insert(ctx context.Context, touchpoint *model.Touchpoint) error {
	row := *touchpoint
	s.touchpoints[touchpoint.ID] = &row
	return nil
}

func (s touchpointStore) FindForUpdate(ctx context.Context, id string) (*model.Touchpoint, error) {
	return s.findTouchpoint(id)
}

func (s touchpointStore) FindByID(ctx context.Context, id string) (*model.Touchpoint, error) {
	return s.findTouchpoint(id)
}

func (s *memStore) findTouchpoint(id string) (*model.Touchpoint, error) {
	touchpoint, ok := s.touchpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: touchpoint %s", apperrors.ErrNotFound, id)
	}
	row := *touchpoint
	return &row, nil
}

func (s touchpointStore) Save(ctx context.Context, touchpoint *model.Touchpoint) error {
	if _, ok := s.touchpoints[touchpoint.ID]; !ok {
		return fmt.Errorf("%w: touchpoint %s", apperrors.ErrNotFound, touchpoint.ID)
	}
	row := *touchpoint
	s.touchpoints[touchpoint.ID] = &row
	return nil
}

func (s touchpointStore) Delete(ctx context.Context, id string) (*model.Touchpoint, error) {
	existing, ok := s.touchpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: touchpoint %s", apperrors.ErrNotFound, id)
	}
	row := *existing
	delete(s.touchpoints, id)
	return &row, nil
}

func (s touchpointStore) CountStages(ctx context.Context, conversationID string) (*storage.EngagementStageCounts, error) {
	counts := &storage.EngagementStageCounts{}
	for _, t := range s.touchpoints {
		if t.ConversationID != conversationID {
			continue
		}
		counts.TotalTouchpoints++
		if t.Direction != model.DirectionOutbound || t.Channel != model.ChannelEmail {
			continue
		}
		counts.OutboundEmails++
		if t.DeliveredAt != nil {
			counts.Delivered++
		}
		if t.OpenedAt != nil {
			counts.Opened++
		}
		if t.ClickedAt != nil {
			counts.Clicked++
		}
		if t.RepliedAt != nil {
			counts.Replied++
		}
		if t.BouncedAt != nil {
			counts.Bounced++
		}
	}
	return counts, nil
}

func (s touchpointStore) Close(ctx context.Context) error { return nil }

type relationshipStore struct{ *memStore }

func (s relationshipStore) Insert(ctx context.Context, relationship *model.Relationship) error {
	if relationship.ContactAID == relationship.ContactBID {
		return fmt.Errorf("%w: contact %s", apperrors.ErrSelfRelationship, relationship.ContactAID)
	}
	relationship.Normalize()
	for _, existing := range s.relationships {
		if existing.ContactAID == relationship.ContactAID && existing.ContactBID == relationship.ContactBID {
			return fmt.Errorf("%w: constraint idx_relationships_pair", apperrors.ErrDuplicateRelationship)
		}
	}
	row := *relationship
	s.relationships[relationship.ID] = &row
	return nil
}

func (s relationshipStore) Delete(ctx context.Context, id string) (*model.Relationship, error) {
	existing, ok := s.relationships[id]
	if !ok {
		return nil, fmt.Errorf("%w: relationship %s", apperrors.ErrNotFound, id)
	}
	row := *existing
	delete(s.relationships, id)
	return &row, nil
}

func (s relationshipStore) FindByPair(ctx context.Context, contactID, otherID string) (*model.Relationship, error) {
	probe := model.Relationship{ContactAID: contactID, ContactBID: otherID}
	probe.Normalize()
	for _, existing := range s.relationships {
		if existing.ContactAID == probe.ContactAID && existing.ContactBID == probe.ContactBID {
			row := *existing
			return &row, nil
		}
	}
	return nil, fmt.Errorf("%w: relationship %s/%s", apperrors.ErrNotFound, contactID, otherID)
}

func (s relationshipStore) FindByContact(ctx context.Context, contactID string) ([]model.Relationship, error) {
	var out []model.Relationship
	for _, edge := range s.relationships {
		if edge.ContactAID == contactID || edge.ContactBID == contactID {
			out = append(out, *edge)
		}
	}
	return out, nil
}

func (s relationshipStore) FindColleagues(ctx context.Context, contactID string) ([]model.Contact, error) {
	return nil, nil
}

func (s relationshipStore) Close(ctx context.Context) error { return nil }

type overviewStore struct{ *memStore }

func (s overviewStore) Compute(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	return &model.CompanyOverview{CompanyID: companyID}, nil
}

func (s overviewStore) Upsert(ctx context.Context, overview *model.CompanyOverview) error {
	row := *overview
	s.overviews[overview.CompanyID] = &row
	return nil
}

func (s overviewStore) Get(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	overview, ok := s.overviews[companyID]
	if !ok {
		return nil, fmt.Errorf("%w: overview %s", apperrors.ErrNotFound, companyID)
	}
	row := *overview
	return &row, nil
}

func (s overviewStore) Delete(ctx context.Context, companyID string) error {
	delete(s.overviews, companyID)
	return nil
}

func (s overviewStore) Close(ctx context.Context) error { return nil }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *memStore) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	cfg := &config.Config{}
	cfg.Engine.ConflictRetries = 3
	cfg.Engine.ConflictBaseDelay = time.Millisecond
	cfg.Engine.ConflictMaxDelay = 5 * time.Millisecond

	store := newMemStore()
	dispatcher := NewDispatcher(cfg, store,
		store,
		contactStore{store},
		conversationStore{store},
		touchpointStore{store},
		relationshipStore{store},
		overviewStore{store},
	)
	return dispatcher, store
}

func seedCompanyWithContact(t *testing.T, store *memStore) (*model.Company, *model.Contact) {
	t.Helper()
	company := &model.Company{
		ID:     "company-1",
		Name:   gofakeit.Company(),
		Domain: gofakeit.DomainName(),
		Status: model.CompanyStatusActive,
	}
	store.companies[company.ID] = company
	contact := &model.Contact{
		ID:        "contact-1",
		CompanyID: company.ID,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		Email:     gofakeit.Email(),
		Status:    model.ContactStatusActive,
	}
	store.contacts[contact.ID] = contact
	company.TotalContacts = 1
	return company, contact
}

func seedActiveConversation(store *memStore, id string, company *model.Company, contact *model.Contact) *model.Conversation {
	conversation := &model.Conversation{
		ID:        id,
		ContactID: contact.ID,
		CompanyID: company.ID,
		Status:    model.ConversationStatusActive,
	}
	store.conversations[id] = conversation
	company.ActiveConversations++
	return conversation
}

func TestDispatcher_UpsertContact_CreateIncrementsCompanyCounter(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, _ := seedCompanyWithContact(t, store)

	contact := &model.Contact{
		CompanyID: company.ID,
		FirstName: "New",
		LastName:  "Contact",
	}
	err := dispatcher.UpsertContact(context.Background(), contact)
	require.NoError(t, err)
	assert.NotEmpty(t, contact.ID)
	assert.Equal(t, 2, store.companies[company.ID].TotalContacts)

	// Second upsert of the same contact is an update, not another increment.
	contact.Title = "VP Sales"
	err = dispatcher.UpsertContact(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, 2, store.companies[company.ID].TotalContacts)
	assert.Equal(t, "VP Sales", store.contacts[contact.ID].Title)
}

func TestDispatcher_DeleteContact_SettlesCompanyCounters(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	seedActiveConversation(store, "conv-1", company, contact)
	seedActiveConversation(store, "conv-2", company, contact)
	store.conversations["conv-3"] = &model.Conversation{
		ID: "conv-3", ContactID: contact.ID, CompanyID: company.ID,
		Status: model.ConversationStatusClosed,
	}

	err := dispatcher.DeleteContact(context.Background(), contact.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, store.companies[company.ID].TotalContacts)
	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)
	assert.Empty(t, store.conversations)
}

func TestDispatcher_UpsertConversation_ActiveCreateIncrements(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)

	conversation := &model.Conversation{
		ContactID: contact.ID,
		CompanyID: company.ID,
	}
	err := dispatcher.UpsertConversation(context.Background(), conversation)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationStatusActive, conversation.Status)
	assert.Equal(t, 1, store.companies[company.ID].ActiveConversations)

	// A non-active create leaves the counter alone.
	paused := &model.Conversation{
		ContactID: contact.ID,
		CompanyID: company.ID,
		Status:    model.ConversationStatusPaused,
	}
	err = dispatcher.UpsertConversation(context.Background(), paused)
	require.NoError(t, err)
	assert.Equal(t, 1, store.companies[company.ID].ActiveConversations)
}

func TestDispatcher_UpsertConversation_RejectsUnknownStatus(t *testing.T) {
	dispatcher, _ := newTestDispatcher(t)
	conversation := &model.Conversation{
		ContactID: "contact-1",
		CompanyID: "company-1",
		Status:    "archived",
	}
	err := dispatcher.UpsertConversation(context.Background(), conversation)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
}

func TestDispatcher_UpsertConversation_StatusCarriedOnUpdate(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	seedActiveConversation(store, "conv-1", company, contact)

	update := &model.Conversation{
		ID:                "conv-1",
		Status:            model.ConversationStatusClosed,
		QualificationTier: "qualified",
	}
	err := dispatcher.UpsertConversation(context.Background(), update)
	require.NoError(t, err)

	stored := store.conversations["conv-1"]
	assert.Equal(t, model.ConversationStatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, "qualified", stored.QualificationTier)
	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)

	// The caller gets the finalized record back.
	assert.Equal(t, model.ConversationStatusClosed, update.Status)
	require.NotNil(t, update.ClosedAt)
}

func TestDispatcher_UpsertConversation_OmittedStatusMeansUnchanged(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)

	closedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	store.conversations["conv-1"] = &model.Conversation{
		ID:        "conv-1",
		ContactID: contact.ID,
		CompanyID: company.ID,
		Status:    model.ConversationStatusClosed,
		ClosedAt:  utils.TimePtr(closedAt),
	}

	update := &model.Conversation{ID: "conv-1", QualificationTier: "qualified"}
	err := dispatcher.UpsertConversation(context.Background(), update)
	require.NoError(t, err)

	stored := store.conversations["conv-1"]
	assert.Equal(t, model.ConversationStatusClosed, stored.Status)
	assert.Equal(t, "qualified", stored.QualificationTier)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, closedAt, *stored.ClosedAt)
	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)
}

func TestDispatcher_ChangeConversationStatus_StampsClosedAtOnce(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)
	ctx := context.Background()

	err := dispatcher.ChangeConversationStatus(ctx, conversation.ID, model.ConversationStatusClosed)
	require.NoError(t, err)
	stored := store.conversations[conversation.ID]
	require.NotNil(t, stored.ClosedAt)
	firstStamp := *stored.ClosedAt
	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)

	// Moving between terminal states keeps the original stamp.
	err = dispatcher.ChangeConversationStatus(ctx, conversation.ID, model.ConversationStatusLost)
	require.NoError(t, err)
	assert.Equal(t, firstStamp, *store.conversations[conversation.ID].ClosedAt)

	// Reopening restores the counter but never clears closed_at, and a
	// second close does not overwrite the first stamp.
	err = dispatcher.ChangeConversationStatus(ctx, conversation.ID, model.ConversationStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, store.companies[company.ID].ActiveConversations)
	assert.Equal(t, firstStamp, *store.conversations[conversation.ID].ClosedAt)

	err = dispatcher.ChangeConversationStatus(ctx, conversation.ID, model.ConversationStatusWon)
	require.NoError(t, err)
	assert.Equal(t, firstStamp, *store.conversations[conversation.ID].ClosedAt)
	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)
}

func TestDispatcher_ChangeConversationStatus_SameStatusNoOp(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	err := dispatcher.ChangeConversationStatus(context.Background(), conversation.ID, model.ConversationStatusActive)
	require.NoError(t, err)
	assert.Equal(t, 1, store.companies[company.ID].ActiveConversations)
	assert.Nil(t, store.conversations[conversation.ID].ClosedAt)
}

func TestDispatcher_DeleteConversation_SettlesAggregates(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)
	conversation.TouchpointCount = 3
	contact.TotalTouchpoints = 3

	err := dispatcher.DeleteConversation(context.Background(), conversation.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, store.companies[company.ID].ActiveConversations)
	assert.Equal(t, 0, store.contacts[contact.ID].TotalTouchpoints)
	assert.Empty(t, store.conversations)
}

func TestDispatcher_CreateTouchpoint_PipelinePropagates(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	sentAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	openedAt := sentAt.Add(time.Hour)
	touchpoint := &model.Touchpoint{
		ConversationID: conversation.ID,
		Channel:        model.ChannelEmail,
		Direction:      model.DirectionOutbound,
		SentAt:         &sentAt,
		OpenedAt:       &openedAt,
	}
	err := dispatcher.CreateTouchpoint(context.Background(), touchpoint)
	require.NoError(t, err)

	assert.NotEmpty(t, touchpoint.ID)
	assert.Equal(t, model.OutcomeOpened, store.touchpoints[touchpoint.ID].Outcome)

	stored := store.conversations[conversation.ID]
	assert.Equal(t, 1, stored.TouchpointCount)
	assert.Equal(t, 0, stored.ResponseCount)
	require.NotNil(t, stored.LastTouchpointAt)
	assert.Equal(t, sentAt, *stored.LastTouchpointAt)

	assert.Equal(t, 1, store.contacts[contact.ID].TotalTouchpoints)
	require.NotNil(t, store.contacts[contact.ID].LastEngagedAt)
	assert.Equal(t, sentAt, *store.contacts[contact.ID].LastEngagedAt)
}

func TestDispatcher_CreateTouchpoint_InboundReplyCountsAsResponse(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	sentAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repliedAt := sentAt.Add(time.Minute)
	touchpoint := &model.Touchpoint{
		ConversationID: conversation.ID,
		Direction:      model.DirectionInbound,
		SentAt:         &sentAt,
		RepliedAt:      &repliedAt,
	}
	err := dispatcher.CreateTouchpoint(context.Background(), touchpoint)
	require.NoError(t, err)

	stored := store.conversations[conversation.ID]
	assert.Equal(t, 1, stored.ResponseCount)
	require.NotNil(t, stored.LastResponseAt)
	assert.Equal(t, repliedAt, *stored.LastResponseAt)
	assert.Equal(t, model.OutcomeReplied, store.touchpoints[touchpoint.ID].Outcome)
}

func TestDispatcher_CreateTouchpoint_MissingConversation(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)

	sentAt := time.Now().UTC()
	touchpoint := &model.Touchpoint{
		ConversationID: "conv-missing",
		SentAt:         &sentAt,
	}
	err := dispatcher.CreateTouchpoint(context.Background(), touchpoint)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, store.touchpoints)
}

func TestDispatcher_UpdateTouchpoint_ReclassifiesResponse(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	sentAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	touchpoint := &model.Touchpoint{
		ConversationID: conversation.ID,
		Direction:      model.DirectionInbound,
		SentAt:         &sentAt,
	}
	require.NoError(t, dispatcher.CreateTouchpoint(context.Background(), touchpoint))
	require.Equal(t, 0, store.conversations[conversation.ID].ResponseCount)

	repliedAt := sentAt.Add(30 * time.Minute)
	update := &model.Touchpoint{ID: touchpoint.ID, RepliedAt: &repliedAt}
	require.NoError(t, dispatcher.UpdateTouchpoint(context.Background(), update))

	stored := store.conversations[conversation.ID]
	assert.Equal(t, 1, stored.ResponseCount)
	require.NotNil(t, stored.LastResponseAt)
	assert.Equal(t, repliedAt, *stored.LastResponseAt)
	assert.Equal(t, model.OutcomeReplied, store.touchpoints[touchpoint.ID].Outcome)
	// The touchpoint itself was not recounted.
	assert.Equal(t, 1, stored.TouchpointCount)
}

func TestDispatcher_DeleteTouchpoint_ReversesAggregates(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	sentAt := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repliedAt := sentAt.Add(time.Minute)
	touchpoint := &model.Touchpoint{
		ConversationID: conversation.ID,
		Direction:      model.DirectionInbound,
		SentAt:         &sentAt,
		RepliedAt:      &repliedAt,
	}
	require.NoError(t, dispatcher.CreateTouchpoint(context.Background(), touchpoint))

	err := dispatcher.DeleteTouchpoint(context.Background(), touchpoint.ID)
	require.NoError(t, err)

	stored := store.conversations[conversation.ID]
	assert.Equal(t, 0, stored.TouchpointCount)
	assert.Equal(t, 0, stored.ResponseCount)
	assert.Equal(t, 0, store.contacts[contact.ID].TotalTouchpoints)
	assert.Empty(t, store.touchpoints)
}

func TestDispatcher_CreateRelationship_SelfEdgeRejected(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)

	err := dispatcher.CreateRelationship(context.Background(), &model.Relationship{
		ContactAID: "contact-1",
		ContactBID: "contact-1",
	})
	assert.ErrorIs(t, err, apperrors.ErrSelfRelationship)
	assert.Empty(t, store.relationships)
}

func TestDispatcher_CreateRelationship_DuplicateEitherOrientation(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	ctx := context.Background()

	first := &model.Relationship{
		ContactAID: "contact-b",
		ContactBID: "contact-a",
		Type:       model.RelationshipColleagues,
	}
	require.NoError(t, dispatcher.CreateRelationship(ctx, first))
	// Stored normalized regardless of the orientation supplied.
	stored := store.relationships[first.ID]
	require.NotNil(t, stored)
	assert.Equal(t, "contact-a", stored.ContactAID)
	assert.Equal(t, "contact-b", stored.ContactBID)

	reversed := &model.Relationship{
		ContactAID: "contact-a",
		ContactBID: "contact-b",
	}
	err := dispatcher.CreateRelationship(ctx, reversed)
	assert.ErrorIs(t, err, apperrors.ErrDuplicateRelationship)
	assert.Len(t, store.relationships, 1)
}

func TestDispatcher_DeleteCompany_RemovesOverview(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, _ := seedCompanyWithContact(t, store)
	store.overviews[company.ID] = &model.CompanyOverview{CompanyID: company.ID}

	err := dispatcher.DeleteCompany(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Empty(t, store.companies)
	assert.Empty(t, store.overviews)
}

func TestDispatcher_RunPipeline_RetriesOnConflict(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, _ := seedCompanyWithContact(t, store)
	store.conflictsToInject = 2

	contact := &model.Contact{CompanyID: company.ID, FirstName: "Retry"}
	err := dispatcher.UpsertContact(context.Background(), contact)
	require.NoError(t, err)
	assert.Equal(t, 2, store.companies[company.ID].TotalContacts)
}

func TestDispatcher_RunPipeline_ConflictRetriesExhausted(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, _ := seedCompanyWithContact(t, store)
	store.conflictsToInject = 10

	contact := &model.Contact{CompanyID: company.ID, FirstName: "Exhausted"}
	err := dispatcher.UpsertContact(context.Background(), contact)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestDispatcher_ConcurrentTouchpointCreates(t *testing.T) {
	dispatcher, store := newTestDispatcher(t)
	company, contact := seedCompanyWithContact(t, store)
	conversation := seedActiveConversation(store, "conv-1", company, contact)

	const workers = 10
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sentAt := time.Now().UTC()
				errs <- dispatcher.CreateTouchpoint(context.Background(), &model.Touchpoint{
					ConversationID: conversation.ID,
					Direction:      model.DirectionOutbound,
					SentAt:         &sentAt,
				})
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, workers*perWorker, store.conversations[conversation.ID].TouchpointCount)
	assert.Equal(t, workers*perWorker, store.contacts[contact.ID].TotalTouchpoints)
	assert.Len(t, store.touchpoints, workers*perWorker)
}
