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

// InsertTouchpoint creates a new touchpoint row.
func (r *PostgresRepo) InsertTouchpoint(ctx context.Context, touchpoint *model.Touchpoint) error {
	if err := r.conn(ctx).Create(touchpoint).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// FindTouchpointForUpdate loads a touchpoint row under a row lock. Must run
// inside a transaction.
func (r *PostgresRepo) FindTouchpointForUpdate(ctx context.Context, id string) (*model.Touchpoint, error) {
	var touchpoint model.Touchpoint
	result := r.conn(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&touchpoint)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: touchpoint %s: %w", apperrors.ErrNotFound, id, result.Error)
		}
		return nil, checkConstraintViolation(result.Error)
	}
	return &touchpoint, nil
}

// SaveTouchpoint persists the full current state of a touchpoint row that
// was previously loaded under lock.
func (r *PostgresRepo) SaveTouchpoint(ctx context.Context, touchpoint *model.Touchpoint) error {
	touchpoint.UpdatedAt = utils.Now()
	if err := r.conn(ctx).Save(touchpoint).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// DeleteTouchpoint removes a touchpoint row, returning it so the dispatcher
// can propagate the reverse counter deltas.
func (r *PostgresRepo) DeleteTouchpoint(ctx context.Context, id string) (*model.Touchpoint, error) {
	existing, err := r.FindTouchpointForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.conn(ctx).Delete(existing).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	return existing, nil
}

// FindTouchpointByID finds a touchpoint by its ID.
func (r *PostgresRepo) FindTouchpointByID(ctx context.Context, id string) (*model.Touchpoint, error) {
	var touchpoint model.Touchpoint
	operation := func() error {
		result := r.conn(ctx).Where("id = ?", id).First(&touchpoint)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: touchpoint %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindTouchpointByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "touchpoint", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find touchpoint by ID after retries",
			zap.String("touchpoint_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &touchpoint, nil
}

// EngagementStageCounts aggregates a conversation's touchpoints by
// engagement stage: total across all channels, plus per-stage counts of
// outbound email touchpoints for rate computation.
type EngagementStageCounts struct {
	TotalTouchpoints int `gorm:"column:total_touchpoints"`
	OutboundEmails   int `gorm:"column:outbound_emails"`
	Delivered        int `gorm:"column:delivered"`
	Opened           int `gorm:"column:opened"`
	Clicked          int `gorm:"column:clicked"`
	Replied          int `gorm:"column:replied"`
	Bounced          int `gorm:"column:bounced"`
}

// CountEngagementStages computes EngagementStageCounts for a conversation in
// a single aggregate query.
func (r *PostgresRepo) CountEngagementStages(ctx context.Context, conversationID string) (*EngagementStageCounts, error) {
	var counts EngagementStageCounts
	operation := func() error {
		err := r.conn(ctx).Raw(`
			SELECT
				COUNT(*) AS total_touchpoints,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND sent_at IS NOT NULL) AS outbound_emails,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND delivered_at IS NOT NULL) AS delivered,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND opened_at IS NOT NULL) AS opened,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND clicked_at IS NOT NULL) AS clicked,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND replied_at IS NOT NULL) AS replied,
				COUNT(*) FILTER (WHERE direction = ? AND channel = ? AND bounced_at IS NOT NULL) AS bounced
			FROM touchpoints
			WHERE conversation_id = ?`,
			model.DirectionOutbound, model.ChannelEmail,
			model.DirectionOutbound, model.ChannelEmail,
			model.DirectionOutbound, model.ChannelEmail,
			model.DirectionOutbound, model.ChannelEmail,
			model.DirectionOutbound, model.ChannelEmail,
			model.DirectionOutbound, model.ChannelEmail,
			conversationID,
		).Scan(&counts).Error
		if err != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "CountEngagementStages", operation)
	observer.ObserveDbOperationDuration("count_stages", "touchpoint", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to count engagement stages after retries",
			zap.String("conversation_id", conversationID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &counts, nil
}
