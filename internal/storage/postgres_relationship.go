package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/model"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/pkg/logger"
	"github.com/stratalink/engagement-engine/pkg/utils"
)

// InsertRelationship creates a relationship edge. The caller must normalize
// the pair first; the unique index on (contact_a_id, contact_b_id) is the
// arbiter under concurrent inserts and surfaces as ErrDuplicateRelationship.
func (r *PostgresRepo) InsertRelationship(ctx context.Context, relationship *model.Relationship) error {
	if relationship.ContactAID == relationship.ContactBID {
		return fmt.Errorf("%w: contact %s cannot relate to itself", apperrors.ErrSelfRelationship, relationship.ContactAID)
	}
	relationship.Normalize()
	if err := r.conn(ctx).Create(relationship).Error; err != nil {
		return checkConstraintViolation(err)
	}
	return nil
}

// DeleteRelationship removes an edge by ID, returning the deleted row so the
// dispatcher can log which pair was unlinked.
func (r *PostgresRepo) DeleteRelationship(ctx context.Context, id string) (*model.Relationship, error) {
	var existing model.Relationship
	result := r.conn(ctx).Where("id = ?", id).First(&existing)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: relationship %s: %w", apperrors.ErrNotFound, id, result.Error)
		}
		return nil, checkConstraintViolation(result.Error)
	}
	if err := r.conn(ctx).Delete(&existing).Error; err != nil {
		return nil, checkConstraintViolation(err)
	}
	return &existing, nil
}

// FindRelationshipByPair looks up the edge between two contacts regardless of
// the order the pair is given in.
func (r *PostgresRepo) FindRelationshipByPair(ctx context.Context, contactID, otherID string) (*model.Relationship, error) {
	probe := model.Relationship{ContactAID: contactID, ContactBID: otherID}
	probe.Normalize()

	var relationship model.Relationship
	operation := func() error {
		result := r.conn(ctx).
			Where("contact_a_id = ? AND contact_b_id = ?", probe.ContactAID, probe.ContactBID).
			First(&relationship)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: relationship between %s and %s: %w",
					apperrors.ErrNotFound, contactID, otherID, result.Error)
			}
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindRelationshipByPair", operation)
	observer.ObserveDbOperationDuration("find_by_pair", "relationship", time.Since(startTime), findErr)

	if findErr != nil {
		if errors.Is(findErr, apperrors.ErrNotFound) {
			return nil, findErr
		}
		logger.FromContext(ctx).Error("Failed to find relationship by pair after retries",
			zap.String("contact_id", contactID),
			zap.String("other_id", otherID),
			zap.Error(findErr))
		return nil, findErr
	}
	return &relationship, nil
}

// FindRelationshipsByContact returns every edge touching the contact, from
// either side of the normalized pair.
func (r *PostgresRepo) FindRelationshipsByContact(ctx context.Context, contactID string) ([]model.Relationship, error) {
	var relationships []model.Relationship
	operation := func() error {
		result := r.conn(ctx).
			Where("contact_a_id = ? OR contact_b_id = ?", contactID, contactID).
			Order("created_at ASC").
			Find(&relationships)
		if result.Error != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindRelationshipsByContact", operation)
	observer.ObserveDbOperationDuration("find_by_contact", "relationship", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find relationships by contact after retries",
			zap.String("contact_id", contactID),
			zap.Error(findErr))
		return nil, findErr
	}
	return relationships, nil
}

// FindColleagues returns contacts linked to the given contact by a colleague
// edge who belong to the same company.
func (r *PostgresRepo) FindColleagues(ctx context.Context, contactID string) ([]model.Contact, error) {
	var colleagues []model.Contact
	operation := func() error {
		err := r.conn(ctx).Raw(`
			SELECT c.*
			FROM contacts c
			JOIN relationships r
			  ON (r.contact_a_id = ? AND r.contact_b_id = c.id)
			  OR (r.contact_b_id = ? AND r.contact_a_id = c.id)
			JOIN contacts self ON self.id = ?
			WHERE r.type = ?
			  AND c.company_id = self.company_id
			ORDER BY c.last_name ASC, c.first_name ASC`,
			contactID, contactID, contactID, model.RelationshipColleagues,
		).Scan(&colleagues).Error
		if err != nil {
			return fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	findErr := retryableOperation(ctx, readPolicy, "FindColleagues", operation)
	observer.ObserveDbOperationDuration("find_colleagues", "relationship", time.Since(startTime), findErr)

	if findErr != nil {
		logger.FromContext(ctx).Error("Failed to find colleagues after retries",
			zap.String("contact_id", contactID),
			zap.Error(findErr))
		return nil, findErr
	}
	return colleagues, nil
}

// CountRelationshipsByCompany counts edges where both endpoints belong to
// the company. Used by the overview materializer.
func (r *PostgresRepo) CountRelationshipsByCompany(ctx context.Context, companyID string) (int, error) {
	var count int
	err := r.conn(ctx).Raw(`
		SELECT COUNT(*)
		FROM relationships r
		JOIN contacts a ON a.id = r.contact_a_id
		JOIN contacts b ON b.id = r.contact_b_id
		WHERE a.company_id = ? AND b.company_id = ?`,
		companyID, companyID,
	).Scan(&count).Error
	if err != nil {
		return 0, fmt.Errorf("%w: query failed: %w", apperrors.ErrDatabase, err)
	}
	return count, nil
}
