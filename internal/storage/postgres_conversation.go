package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// InsertConversation creates a new conversation row.
func (r *PostgresRepo) InsertConversation(ctx context.Context, conversation *model.Conversation) error {
	if err := r.conn(ctx).Create(conversation).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// FindConversationForUpdate loads a conversation row under a row lock. Must
// run inside a transaction; the lock serializes concurrent status updates on
// the same conversation.
func (r *PostgresRepo) FindConversationForUpdate(ctx context.Context, id string) (*model.Conversation, error) {
	var conversation model.Conversation
	result := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&conversation)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %s: %w", apperrors.ErrNotFound, id, result.Error)
		}
		return nil, checkConstraintViolation(result.Error)
	}
	return &conversation, nil
}

// UpdateConversation updates mutable scheduling/qualification fields. Status
// changes go through SetConversationStatus; the contact/company references
// are immutable after creation.
func (r *PostgresRepo) UpdateConversation(ctx context.Context, conversation *model.Conversation) error {
	db := r.conn(ctx)

	existing, err := r.FindConversationForUpdate(ctx, conversation.ID)
	if err != nil {
		return err
	}

	if conversation.ContactID != "" && conversation.ContactID != existing.ContactID {
		return fmt.Errorf("%w: conversation %s contact reference is immutable", apperrors.ErrBadRequest, conversation.ID)
	}
	if conversation.CompanyID != "" && conversation.CompanyID != existing.CompanyID {
		return fmt.Errorf("%w: conversation %s company reference is immutable", apperrors.ErrBadRequest, conversation.ID)
	}

	updates := map[string]interface{}{
		"qualification_tier": conversation.QualificationTier,
		"outcome":            conversation.Outcome,
		"updated_at":         utils.Now(),
	}
	if conversation.NextTouchpointAt != nil {
		updates["next_touchpoint_at"] = conversation.NextTouchpointAt.UTC()
	}
	if conversation.Context != nil {
		updates["context"] = conversation.Context
	}
	if err := db.Model(existing).Updates(updates).Error; err != nil {
		return checkConstraintViolation(err)
	}
	*conversation = *existing
	return nil
}

// SetConversationStatus persists a status transition, stamping closed_at when
// the dispatcher determined the transition first enters the terminal set.
func (r *PostgresRepo) SetConversationStatus(ctx context.Context, id, status string, closedAt *time.Time) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": utils.Now(),
	}
	if closedAt != nil {
		updates["closed_at"] = closedAt.UTC()
	}

	result := r.conn(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: conversation %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// DeleteConversation removes a conversation row; its touchpoints cascade
// away. Returns the deleted row so the dispatcher can propagate deltas.
func (r *PostgresRepo) DeleteConversation(ctx context.Context, id string) (*model.Conversation, error) {
	existing, err := r.FindConversationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Delete(existing).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	return existing, nil
}

// ApplyTouchpointDeltas applies touchpoint/response deltas to a
// conversation's aggregates as a single atomic UPDATE. Decrements floor at
// zero; a missing conversation row is a no-op.
func (r *PostgresRepo) ApplyTouchpointDeltas(ctx context.Context, id string, touchpointDelta int, lastTouchpointAt *time.Time, responseDelta int, lastResponseAt *time.Time) error {
	if touchpointDelta == 0 && responseDelta == 0 && lastTouchpointAt == nil && lastResponseAt == nil {
		return nil
	}

	updates := map[string]interface{}{"updated_at": utils.Now()}
	if touchpointDelta != 0 {
		updates["touchpoint_count"] = gorm.Expr("GREATEST(touchpoint_count + ?, 0)", touchpointDelta)
	}
	if lastTouchpointAt != nil {
		updates["last_touchpoint_at"] = lastTouchpointAt.UTC()
	}
	if responseDelta != 0 {
		updates["response_count"] = gorm.Expr("GREATEST(response_count + ?, 0)", responseDelta)
	}
	if lastResponseAt != nil {
		updates["last_response_at"] = lastResponseAt.UTC()
	}

	result := r.conn(ctx).Model(&model.Conversation{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		logger.FromContext(ctx).Debug("Conversation delta target missing, skipping",
			zap.String("conversation_id", id),
			zap.Int("touchpoint_delta", touchpointDelta),
			zap.Int("response_delta", responseDelta))
	}
	return nil
}

// CountActiveConversationsByContact counts a contact's conversations
// currently in status active.
func (r *PostgresRepo) CountActiveConversationsByContact(ctx context.Context, contactID string) (int, error) {
	var count int64
	err := r.conn(ctx).Model(&model.Conversation{}).
		Where("contact_id = ? AND status = ?", contactID, model.ConversationStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, checkConstraintViolation(err)
	}
	return int(count), nil
}

// FindConversationByID finds a conversation by its ID.
func (r *PostgresRepo) FindConversationByID(ctx context.Context, id string) (*model.Conversation, error) {
	var conversation model.Conversation
	operation := func() error {
		result := r.conn(ctx).Where("id = ?", id).First(&conversation)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: conversation %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindConversationByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "conversation", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find conversation by ID after retries",
			zap.String("conversation_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &conversation, nil
}

// FindActiveConversationsByCompany returns a company's active conversations,
// most recently touched first, conversations without a touchpoint yet last.
func (r *PostgresRepo) FindActiveConversationsByCompany(ctx context.Context, companyID string) ([]model.Conversation, error) {
	var conversations []model.Conversation
	operation := func() error {
		result := r.conn(ctx).
			Where("company_id = ? AND status = ?", companyID, model.ConversationStatusActive).
			Order("last_touchpoint_at DESC NULLS LAST").
			Find(&conversations)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindActiveConversationsByCompany", operation)
	observer.ObserveDbOperationDuration("find_active_by_company", "conversation", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find active conversations after retries",
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr
	}
	if conversations == nil {
		return []model.Conversation{}, nil
	}
	return conversations, nil
}

// FindOverdueConversations returns active conversations whose next scheduled
// touchpoint is due at or before now, soonest first.
func (r *PostgresRepo) FindOverdueConversations(ctx context.Context, now time.Time) ([]model.Conversation, error) {
	var conversations []model.Conversation
	operation := func() error {
		result := r.conn(ctx).
			Where("status = ? AND next_touchpoint_at IS NOT NULL AND next_touchpoint_at <= ?", model.ConversationStatusActive, now.UTC()).
			Order("next_touchpoint_at ASC").
			Find(&conversations)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindOverdueConversations", operation)
	observer.ObserveDbOperationDuration("find_overdue", "conversation", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find overdue conversations after retries", zap.Error(findErr))
		return nil, findErr
	}
	if conversations == nil {
		return []model.Conversation{}, nil
	}
	return conversations, nil
}
