package storage

import (
	"errors"
	"fmt"
	"time"

	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// InsertCompany creates a new company row.
func (r *PostgresRepo) InsertCompany(ctx context.Context, company *model.Company) error {
	if err := r.conn(ctx).Create(company).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// UpdateCompany updates mutable fields of an existing company row. The
// aggregate counters are not writable through this path.
func (r *PostgresRepo) UpdateCompany(ctx context.Context, company *model.Company) error {
	db := r.conn(ctx)

	var existing model.Company
	result := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", company.ID).
		First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: company %s: %w", apperrors.ErrNotFound, company.ID, result.Error)
		}
		return checkConstraintViolation(result.Error)
	}

	updates := map[string]interface{}{
		"name":       company.Name,
		"domain":     company.Domain,
		"tier":       company.Tier,
		"status":     company.Status,
		"updated_at": utils.Now(),
	}
	if company.Metadata != nil {
		updates["metadata"] = company.Metadata
	}
	if err := db.Model(&existing).Updates(updates).Error; err != nil {
		return checkConstraintViolation(err)
	}
	*company = existing
	return nil
}

// DeleteCompany removes a company row; dependent contacts, conversations and
// touchpoints go with it via cascading constraints.
func (r *PostgresRepo) DeleteCompany(ctx context.Context, id string) error {
	result := r.conn(ctx).Where("id = ?", id).Delete(&model.Company{})
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: company %s", apperrors.ErrNotFound, id)
	}
	return nil
}

// AdjustCompanyCounters applies deltas to a company's aggregate counters as a
// single atomic UPDATE. Decrements floor at zero; a missing company row is a
// no-op because the aggregate no longer exists to be wrong.
func (r *PostgresRepo) AdjustCompanyCounters(ctx context.Context, id string, contactDelta, activeDelta int) error {
	if contactDelta == 0 && activeDelta == 0 {
		return nil
	}

	updates := map[string]interface{}{"updated_at": utils.Now()}
	if contactDelta != 0 {
		updates["total_contacts"] = gorm.Expr("GREATEST(total_contacts + ?, 0)", contactDelta)
	}
	if activeDelta != 0 {
		updates["active_conversations"] = gorm.Expr("GREATEST(active_conversations + ?, 0)", activeDelta)
	}

	result := r.conn(ctx).Model(&model.Company{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		logger.FromContext(ctx).Debug("Company counter target missing, skipping delta",
			zap.String("company_id", id),
			zap.Int("contact_delta", contactDelta),
			zap.Int("active_delta", activeDelta))
	}
	return nil
}

// FindCompanyByID finds a company by its ID.
func (r *PostgresRepo) FindCompanyByID(ctx context.Context, id string) (*model.Company, error) {
	var company model.Company
	operation := func() error {
		result := r.conn(ctx).Where("id = ?", id).First(&company)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: company %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindCompanyByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "company", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find company by ID after retries",
			zap.String("company_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &company, nil
}

// ListCompanyIDs returns the ids of all companies, for batch jobs.
func (r *PostgresRepo) ListCompanyIDs(ctx context.Context) ([]string, error) {
	var ids []string
	operation := func() error {
		if err := r.conn(ctx).Model(&model.Company{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "ListCompanyIDs", operation)
	observer.ObserveDbOperationDuration("list_ids", "company", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to list company IDs after retries", zap.Error(findErr))
		return nil, findErr
	}
	if ids == nil {
		return []string{}, nil
	}
	return ids, nil
}
