package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// Dispatcher sequences every entity mutation as an ordered pipeline inside
// one transaction: validate, infer derived fields, persist the base row,
// then propagate aggregate deltas to dependent rows. Contention on aggregate
// rows surfaces as ErrConflict and is retried here with backoff, bounded by
// configuration.
type Dispatcher struct {
	tx            storage.TxRunner
	companies     storage.CompanyRepo
	contacts      storage.ContactRepo
	conversations storage.ConversationRepo
	touchpoints   storage.TouchpointRepo
	relationships storage.RelationshipRepo
	overviews     storage.OverviewRepo

	conflictRetries   int
	conflictBaseDelay time.Duration
	conflictMaxDelay  time.Duration
}

// NewDispatcher creates a Dispatcher over the given repositories.
func NewDispatcher(
	cfg *config.Config,
	tx storage.TxRunner,
	companies storage.CompanyRepo,
	contacts storage.ContactRepo,
	conversations storage.ConversationRepo,
	touchpoints storage.TouchpointRepo,
	relationships storage.RelationshipRepo,
	overviews storage.OverviewRepo,
) *Dispatcher {
	return &Dispatcher{
		tx:                tx,
		companies:         companies,
		contacts:          contacts,
		conversations:     conversations,
		touchpoints:       touchpoints,
		relationships:     relationships,
		overviews:         overviews,
		conflictRetries:   cfg.Engine.ConflictRetries,
		conflictBaseDelay: cfg.Engine.ConflictBaseDelay,
		conflictMaxDelay:  cfg.Engine.ConflictMaxDelay,
	}
}

// runPipeline executes fn inside a transaction, retrying the whole
// transaction on ErrConflict with exponential backoff up to the configured
// bound. Every other error aborts immediately.
func (d *Dispatcher) runPipeline(ctx context.Context, entity, operation string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = d.tx.WithTx(ctx, fn)
		if err == nil || !apperrors.IsConflictError(err) || attempt >= d.conflictRetries {
			break
		}

		delay := d.conflictBaseDelay * (1 << attempt)
		if delay > d.conflictMaxDelay {
			delay = d.conflictMaxDelay
		}
		observer.IncConflictRetry(entity, operation)
		logger.FromContext(ctx).Warn("Aggregate contention, retrying mutation",
			zap.String("entity", entity),
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			observer.IncMutation(entity, operation, ctx.Err())
			return fmt.Errorf("%w: mutation cancelled during conflict backoff: %w", apperrors.ErrTimeout, ctx.Err())
		}
	}
	observer.IncMutation(entity, operation, err)
	return err
}

// UpsertCompany creates the company or updates its mutable fields.
func (d *Dispatcher) UpsertCompany(ctx context.Context, company *model.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	return d.runPipeline(ctx, "company", "upsert", func(ctx context.Context) error {
		_, err := d.companies.FindByID(ctx, company.ID)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				return d.companies.Insert(ctx, company)
			}
			return err
		}
		return d.companies.Update(ctx, company)
	})
}

// DeleteCompany removes the company. Dependent contacts, conversations and
// touchpoints go with it via cascade; the materialized overview row is
// removed in the same transaction.
func (d *Dispatcher) DeleteCompany(ctx context.Context, id string) error {
	return d.runPipeline(ctx, "company", "delete", func(ctx context.Context) error {
		if err := d.companies.Delete(ctx, id); err != nil {
			return err
		}
		return d.overviews.Delete(ctx, id)
	})
}

// UpsertContact creates the contact or updates its mutable fields. A create
// increments the owning company's contact counter in the same transaction.
func (d *Dispatcher) UpsertContact(ctx context.Context, contact *model.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.NewString()
	}
	return d.runPipeline(ctx, "contact", "upsert", func(ctx context.Context) error {
		_, err := d.contacts.FindByID(ctx, contact.ID)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				if insertErr := d.contacts.Insert(ctx, contact); insertErr != nil {
					return insertErr
				}
				return d.companies.AdjustCounters(ctx, contact.CompanyID, +1, 0)
			}
			return err
		}
		return d.contacts.Update(ctx, contact)
	})
}

// DeleteContact removes the contact and settles the owning company's
// counters: one fewer contact, and one fewer active conversation for each
// active conversation the cascade takes down with it.
func (d *Dispatcher) DeleteContact(ctx context.Context, id string) error {
	return d.runPipeline(ctx, "contact", "delete", func(ctx context.Context) error {
		activeCount, err := d.conversations.CountActiveByContact(ctx, id)
		if err != nil {
			return err
		}
		deleted, err := d.contacts.Delete(ctx, id)
		if err != nil {
			return err
		}
		return d.companies.AdjustCounters(ctx, deleted.CompanyID, -1, -activeCount)
	})
}

// UpsertConversation creates the conversation or updates its mutable fields.
// A create defaults status to active and increments the company's active
// counter; an omitted status on update means unchanged. A status carried on
// an update goes through the same transition rules as
// ChangeConversationStatus.
func (d *Dispatcher) UpsertConversation(ctx context.Context, conversation *model.Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.NewString()
	}
	if conversation.Status != "" && !model.IsValidConversationStatus(conversation.Status) {
		return fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrBadRequest, conversation.Status)
	}
	// Update hands the stored row back in the caller's struct, so the
	// requested status must be captured before persisting.
	requestedStatus := conversation.Status
	return d.runPipeline(ctx, "conversation", "upsert", func(ctx context.Context) error {
		existing, err := d.conversations.FindForUpdate(ctx, conversation.ID)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				if conversation.Status == "" {
					conversation.Status = model.ConversationStatusActive
				}
				if insertErr := d.conversations.Insert(ctx, conversation); insertErr != nil {
					return insertErr
				}
				if conversation.Status == model.ConversationStatusActive {
					return d.companies.AdjustCounters(ctx, conversation.CompanyID, 0, +1)
				}
				return nil
			}
			return err
		}

		if updateErr := d.conversations.Update(ctx, conversation); updateErr != nil {
			return updateErr
		}
		if requestedStatus == "" || requestedStatus == existing.Status {
			return nil
		}
		if statusErr := d.applyStatusChange(ctx, existing, requestedStatus); statusErr != nil {
			return statusErr
		}
		conversation.Status = existing.Status
		conversation.ClosedAt = existing.ClosedAt
		return nil
	})
}

// ChangeConversationStatus moves a conversation to a new lifecycle status,
// stamping closed_at on the first terminal entry and adjusting the company's
// active counter when the transition crosses the active boundary.
func (d *Dispatcher) ChangeConversationStatus(ctx context.Context, id, status string) error {
	if !model.IsValidConversationStatus(status) {
		return fmt.Errorf("%w: unknown conversation status %q", apperrors.ErrBadRequest, status)
	}
	return d.runPipeline(ctx, "conversation", "status", func(ctx context.Context) error {
		existing, err := d.conversations.FindForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status == status {
			return nil
		}
		return d.applyStatusChange(ctx, existing, status)
	})
}

// applyStatusChange persists a status transition and its side effects,
// reflecting the new state onto existing. The caller holds the row lock on
// existing.
func (d *Dispatcher) applyStatusChange(ctx context.Context, existing *model.Conversation, status string) error {
	effects := ComputeTransition(existing.Status, status, existing.ClosedAt != nil)

	var closedAt *time.Time
	if effects.StampClosedAt {
		closedAt = utils.NowPtr()
	}
	if err := d.conversations.SetStatus(ctx, existing.ID, status, closedAt); err != nil {
		return err
	}
	existing.Status = status
	if closedAt != nil {
		existing.ClosedAt = closedAt
	}
	if effects.ActiveDelta != 0 {
		return d.companies.AdjustCounters(ctx, existing.CompanyID, 0, effects.ActiveDelta)
	}
	return nil
}

// DeleteConversation removes the conversation and settles the aggregates it
// contributed to: the company's active counter if it was active, and the
// contact's touchpoint total for the touchpoints the cascade removes.
func (d *Dispatcher) DeleteConversation(ctx context.Context, id string) error {
	return d.runPipeline(ctx, "conversation", "delete", func(ctx context.Context) error {
		deleted, err := d.conversations.Delete(ctx, id)
		if err != nil {
			return err
		}
		if deleted.Status == model.ConversationStatusActive {
			if adjustErr := d.companies.AdjustCounters(ctx, deleted.CompanyID, 0, -1); adjustErr != nil {
				return adjustErr
			}
		}
		if deleted.TouchpointCount > 0 {
			return d.contacts.ApplyEngagement(ctx, deleted.ContactID, -deleted.TouchpointCount, nil)
		}
		return nil
	})
}

// CreateTouchpoint runs the full touchpoint pipeline: finalize the outcome,
// persist the row, then propagate deltas to the owning conversation and its
// contact, all in one transaction.
func (d *Dispatcher) CreateTouchpoint(ctx context.Context, touchpoint *model.Touchpoint) error {
	if touchpoint.ID == "" {
		touchpoint.ID = uuid.NewString()
	}
	touchpoint.Outcome = InferredOutcome(touchpoint)
	return d.runPipeline(ctx, "touchpoint", "create", func(ctx context.Context) error {
		conversation, err := d.conversations.FindByID(ctx, touchpoint.ConversationID)
		if err != nil {
			return err
		}
		if err := d.touchpoints.Insert(ctx, touchpoint); err != nil {
			return err
		}

		deltas := createTouchpointDeltas(touchpoint)
		if err := d.conversations.ApplyTouchpointDeltas(ctx, conversation.ID,
			deltas.TouchpointDelta, deltas.LastTouchpointAt,
			deltas.ResponseDelta, deltas.LastResponseAt); err != nil {
			return err
		}
		return d.contacts.ApplyEngagement(ctx, conversation.ContactID, deltas.TouchpointDelta, deltas.EngagedAt)
	})
}

// UpdateTouchpoint merges newly supplied fields into an existing touchpoint,
// re-derives the outcome, and propagates any response reclassification to
// the owning conversation's aggregates.
func (d *Dispatcher) UpdateTouchpoint(ctx context.Context, incoming *model.Touchpoint) error {
	return d.runPipeline(ctx, "touchpoint", "update", func(ctx context.Context) error {
		existing, err := d.touchpoints.FindForUpdate(ctx, incoming.ID)
		if err != nil {
			return err
		}
		before := *existing

		mergeTouchpoint(existing, incoming)
		existing.Outcome = InferredOutcome(existing)
		if err := d.touchpoints.Save(ctx, existing); err != nil {
			return err
		}

		deltas := updateTouchpointDeltas(&before, existing)
		if deltas.ResponseDelta == 0 {
			return nil
		}
		return d.conversations.ApplyTouchpointDeltas(ctx, existing.ConversationID,
			0, nil, deltas.ResponseDelta, deltas.LastResponseAt)
	})
}

// mergeTouchpoint overlays the fields the caller supplied onto the stored
// row. Engagement timestamps only accrue, matching how delivery tracking
// reports them.
func mergeTouchpoint(existing, incoming *model.Touchpoint) {
	if incoming.Channel != "" {
		existing.Channel = incoming.Channel
	}
	if incoming.Direction != "" {
		existing.Direction = incoming.Direction
	}
	if incoming.Subject != "" {
		existing.Subject = incoming.Subject
	}
	if incoming.Outcome != "" {
		existing.Outcome = incoming.Outcome
	}
	if incoming.SentAt != nil {
		existing.SentAt = incoming.SentAt
	}
	if incoming.DeliveredAt != nil {
		existing.DeliveredAt = incoming.DeliveredAt
	}
	if incoming.OpenedAt != nil {
		existing.OpenedAt = incoming.OpenedAt
	}
	if incoming.ClickedAt != nil {
		existing.ClickedAt = incoming.ClickedAt
	}
	if incoming.RepliedAt != nil {
		existing.RepliedAt = incoming.RepliedAt
	}
	if incoming.BouncedAt != nil {
		existing.BouncedAt = incoming.BouncedAt
	}
	if len(incoming.Metadata) > 0 {
		existing.Metadata = incoming.Metadata
	}
}

// DeleteTouchpoint removes the touchpoint and reverses its contribution to
// the owning conversation's and contact's aggregates.
func (d *Dispatcher) DeleteTouchpoint(ctx context.Context, id string) error {
	return d.runPipeline(ctx, "touchpoint", "delete", func(ctx context.Context) error {
		deleted, err := d.touchpoints.Delete(ctx, id)
		if err != nil {
			return err
		}
		deltas := deleteTouchpointDeltas(deleted)
		if err := d.conversations.ApplyTouchpointDeltas(ctx, deleted.ConversationID,
			deltas.TouchpointDelta, nil, deltas.ResponseDelta, nil); err != nil {
			return err
		}

		conversation, err := d.conversations.FindByID(ctx, deleted.ConversationID)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				return nil
			}
			return err
		}
		return d.contacts.ApplyEngagement(ctx, conversation.ContactID, deltas.TouchpointDelta, nil)
	})
}

// CreateRelationship validates and persists an undirected edge between two
// contacts. Self edges and duplicates in either orientation fail before the
// row is written; the duplicate error names the existing edge.
func (d *Dispatcher) CreateRelationship(ctx context.Context, relationship *model.Relationship) error {
	if relationship.ContactAID == relationship.ContactBID {
		err := fmt.Errorf("%w: contact %s cannot relate to itself", apperrors.ErrSelfRelationship, relationship.ContactAID)
		observer.IncMutation("relationship", "create", err)
		return err
	}
	if relationship.ID == "" {
		relationship.ID = uuid.NewString()
	}
	return d.runPipeline(ctx, "relationship", "create", func(ctx context.Context) error {
		existing, err := d.relationships.FindByPair(ctx, relationship.ContactAID, relationship.ContactBID)
		if err == nil {
			return fmt.Errorf("%w: edge %s already links %s and %s",
				apperrors.ErrDuplicateRelationship, existing.ID, existing.ContactAID, existing.ContactBID)
		}
		if !apperrors.IsNotFoundError(err) {
			return err
		}
		// The unique index on the normalized pair arbitrates the race where
		// two callers pass the check concurrently; the loser gets
		// ErrDuplicateRelationship from the insert itself.
		return d.relationships.Insert(ctx, relationship)
	})
}

// DeleteRelationship removes an edge by ID.
func (d *Dispatcher) DeleteRelationship(ctx context.Context, id string) error {
	return d.runPipeline(ctx, "relationship", "delete", func(ctx context.Context) error {
		_, err := d.relationships.Delete(ctx, id)
		return err
	})
}
