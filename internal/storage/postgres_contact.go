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

// InsertContact creates a new contact row.
func (r *PostgresRepo) InsertContact(ctx context.Context, contact *model.Contact) error {
	if err := r.conn(ctx).Create(contact).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// UpdateContact updates mutable fields of an existing contact row. The
// owning company reference and the engagement aggregates are not writable
// through this path.
func (r *PostgresRepo) UpdateContact(ctx context.Context, contact *model.Contact) error {
	db := r.conn(ctx)

	var existing model.Contact
	result := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", contact.ID).
		First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: contact %s: %w", apperrors.ErrNotFound, contact.ID, result.Error)
		}
		return checkConstraintViolation(result.Error)
	}

	if contact.CompanyID != "" && contact.CompanyID != existing.CompanyID {
		return fmt.Errorf("%w: contact %s company reference is immutable", apperrors.ErrBadRequest, contact.ID)
	}

	updates := map[string]interface{}{
		"first_name":        contact.FirstName,
		"last_name":         contact.LastName,
		"email":             contact.Email,
		"title":             contact.Title,
		"status":            contact.Status,
		"is_decision_maker": contact.IsDecisionMaker,
		"updated_at":        utils.Now(),
	}
	if contact.Research != nil {
		updates["research"] = contact.Research
	}
	if err := db.Model(&existing).Updates(updates).Error; err != nil {
		return checkConstraintViolation(err)
	}
	*contact = existing
	return nil
}

// DeleteContact removes a contact row; its conversations, their touchpoints
// and any relationship edges touching it cascade away. Returns the deleted
// row so the dispatcher can propagate counter deltas.
func (r *PostgresRepo) DeleteContact(ctx context.Context, id string) (*model.Contact, error) {
	db := r.conn(ctx)

	var existing model.Contact
	result := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: contact %s: %w", apperrors.ErrNotFound, id, result.Error)
		}
		return nil, checkConstraintViolation(result.Error)
	}

	if err := db.Delete(&existing).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &existing, nil
}

// ApplyContactEngagement applies the touchpoint delta to a contact's
// engagement aggregates as a single atomic UPDATE. engagedAt, when non-nil,
// becomes the contact's last_engaged_at. A missing contact row is a no-op.
func (r *PostgresRepo) ApplyContactEngagement(ctx context.Context, id string, touchpointDelta int, engagedAt *time.Time) error {
	if touchpointDelta == 0 && engagedAt == nil {
		return nil
	}

	updates := map[string]interface{}{"updated_at": utils.Now()}
	if touchpointDelta != 0 {
		updates["total_touchpoints"] = gorm.Expr("GREATEST(total_touchpoints + ?, 0)", touchpointDelta)
	}
	if engagedAt != nil {
		updates["last_engaged_at"] = engagedAt.UTC()
	}

	result := r.conn(ctx).Model(&model.Contact{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return checkConstraintViolation(result.Error)
	}
	if result.RowsAffected == 0 {
		logger.FromContext(ctx).Debug("Contact engagement target missing, skipping delta",
			zap.String("contact_id", id),
			zap.Int("touchpoint_delta", touchpointDelta))
	}
	return nil
}

// FindContactByID finds a contact by its ID.
func (r *PostgresRepo) FindContactByID(ctx context.Context, id string) (*model.Contact, error) {
	var contact model.Contact
	operation := func() error {
		result := r.conn(ctx).Where("id = ?", id).First(&contact)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: contact %s: %w", apperrors.ErrNotFound, id, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactByID", operation)
	observer.ObserveDbOperationDuration("find_by_id", "contact", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find contact by ID after retries",
			zap.String("contact_id", id),
			zap.Error(findErr))
		return nil, findErr
	}
	return &contact, nil
}

// FindContactsByCompany returns all contacts belonging to a company.
func (r *PostgresRepo) FindContactsByCompany(ctx context.Context, companyID string) ([]model.Contact, error) {
	var contacts []model.Contact
	operation := func() error {
		result := r.conn(ctx).
			Where("company_id = ?", companyID).
			Order("created_at ASC").
			Find(&contacts)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindContactsByCompany", operation)
	observer.ObserveDbOperationDuration("find_by_company", "contact", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find contacts by company after retries",
			zap.String("company_id", companyID),
			zap.Error(findErr))
		return nil, findErr
	}
	if contacts == nil {
		return []model.Contact{}, nil
	}
	return contacts, nil
}
