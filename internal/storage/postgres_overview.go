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

// ComputeCompanyOverview recomputes the full rollup for one company from the
// base tables. It does not persist; pair with UpsertCompanyOverview.
func (r *PostgresRepo) ComputeCompanyOverview(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	overview := model.CompanyOverview{CompanyID: companyID}

	err := r.conn(ctx).Raw(`
		SELECT
			COUNT(*) AS contact_count,
			COUNT(*) FILTER (WHERE is_decision_maker) AS decision_maker_count
		FROM contacts
		WHERE company_id = ?`, companyID,
	).Scan(&overview).Error
	if err != nil {
		return nil, fmt.Errorf("%w: contact rollup failed: %w", apperrors.ErrDatabase, err)
	}

	err = r.conn(ctx).Raw(`
		SELECT
			COUNT(*) AS total_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS active_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS paused_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS nurturing_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS closed_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS won_conversations,
			COUNT(*) FILTER (WHERE status = ?) AS lost_conversations
		FROM conversations
		WHERE company_id = ?`,
		model.ConversationStatusActive,
		model.ConversationStatusPaused,
		model.ConversationStatusNurturing,
		model.ConversationStatusClosed,
		model.ConversationStatusWon,
		model.ConversationStatusLost,
		companyID,
	).Scan(&overview).Error
	if err != nil {
		return nil, fmt.Errorf("%w: conversation rollup failed: %w", apperrors.ErrDatabase, err)
	}

	err = r.conn(ctx).Raw(`
		SELECT
			COUNT(*) AS total_touchpoints,
			COUNT(*) FILTER (WHERE t.direction = ? AND t.replied_at IS NOT NULL) AS total_replies,
			MAX(t.sent_at) AS last_touchpoint_at,
			MAX(t.replied_at) FILTER (WHERE t.direction = ?) AS last_reply_at
		FROM touchpoints t
		JOIN conversations cv ON cv.id = t.conversation_id
		WHERE cv.company_id = ?`,
		model.DirectionInbound, model.DirectionInbound, companyID,
	).Scan(&overview).Error
	if err != nil {
		return nil, fmt.Errorf("%w: touchpoint rollup failed: %w", apperrors.ErrDatabase, err)
	}

	relationshipCount, err := r.CountRelationshipsByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	overview.RelationshipCount = relationshipCount
	overview.RefreshedAt = utils.Now()

	return &overview, nil
}

// UpsertCompanyOverview overwrites the stored rollup for a company.
func (r *PostgresRepo) UpsertCompanyOverview(ctx context.Context, overview *model.CompanyOverview) error {
	err := r.conn(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "company_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"contact_count", "decision_maker_count",
			"total_conversations", "active_conversations", "paused_conversations",
			"nurturing_conversations", "closed_conversations", "won_conversations",
			"lost_conversations",
			"total_touchpoints", "total_replies", "relationship_count",
			"last_touchpoint_at", "last_reply_at", "refreshed_at",
		}),
	}).Create(overview).Error
	if err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// GetCompanyOverview returns the latest materialized rollup for a company.
func (r *PostgresRepo) GetCompanyOverview(ctx context.Context, companyID string) (*model.CompanyOverview, error) {
	var overview model.CompanyOverview
	operation := func() error {
		result := r.conn(ctx).Where("company_id = ?", companyID).First(&overview)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: overview for company %s: %w", apperrors.ErrNotFound, companyID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "GetCompanyOverview", operation)
	observer.ObserveDbOperationDuration("get_overview", "company_overview", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to get company overview after retries",
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &overview, nil
}

// DeleteCompanyOverview removes the stored rollup, typically alongside a
// company delete. Missing rows are a no-op.
func (r *PostgresRepo) DeleteCompanyOverview(ctx context.Context, companyID string) error {
	result := r.conn(ctx).Where("company_id = ?", companyID).Delete(&model.CompanyOverview{})
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	return nil
}
