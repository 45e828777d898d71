package storage

import (
	"context"
	"fmt"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/internal/model"
)

// Reconciliation recounts. Each statement rewrites an aggregate column from
// the base tables in one pass and returns how many rows changed. Intended for
// the offline reconciler, not the hot path.

// RecountConversationCounters rebuilds every conversation's touchpoint
// aggregates from the touchpoints table.
func (r *PostgresRepo) RecountConversationCounters(ctx context.Context) (int64, error) {
	result := r.conn(ctx).Exec(`
		UPDATE conversations cv
		SET touchpoint_count  = COALESCE(agg.touchpoint_count, 0),
		    response_count    = COALESCE(agg.response_count, 0),
		    last_touchpoint_at = agg.last_touchpoint_at,
		    last_response_at   = agg.last_response_at
		FROM (
			SELECT cv2.id,
			       COUNT(t.id) AS touchpoint_count,
			       COUNT(t.id) FILTER (WHERE t.direction = ? AND t.replied_at IS NOT NULL) AS response_count,
			       MAX(t.sent_at) AS last_touchpoint_at,
			       MAX(t.replied_at) FILTER (WHERE t.direction = ?) AS last_response_at
			FROM conversations cv2
			LEFT JOIN touchpoints t ON t.conversation_id = cv2.id
			GROUP BY cv2.id
		) agg
		WHERE agg.id = cv.id
		  AND (cv.touchpoint_count IS DISTINCT FROM COALESCE(agg.touchpoint_count, 0)
		    OR cv.response_count IS DISTINCT FROM COALESCE(agg.response_count, 0)
		    OR cv.last_touchpoint_at IS DISTINCT FROM agg.last_touchpoint_at
		    OR cv.last_response_at IS DISTINCT FROM agg.last_response_at)`,
		model.DirectionInbound, model.DirectionInbound)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: conversation recount failed: %w", apperrors.ErrDatabase, result.Error)
	}
	return result.RowsAffected, nil
}

// RecountContactCounters rebuilds every contact's engagement aggregates from
// the touchpoints reachable through its conversations.
func (r *PostgresRepo) RecountContactCounters(ctx context.Context) (int64, error) {
	result := r.conn(ctx).Exec(`
		UPDATE contacts c
		SET total_touchpoints = COALESCE(agg.total_touchpoints, 0),
		    last_engaged_at   = agg.last_engaged_at
		FROM (
			SELECT c2.id,
			       COUNT(t.id) AS total_touchpoints,
			       MAX(t.sent_at) AS last_engaged_at
			FROM contacts c2
			LEFT JOIN conversations cv ON cv.contact_id = c2.id
			LEFT JOIN touchpoints t ON t.conversation_id = cv.id
			GROUP BY c2.id
		) agg
		WHERE agg.id = c.id
		  AND (c.total_touchpoints IS DISTINCT FROM COALESCE(agg.total_touchpoints, 0)
		    OR c.last_engaged_at IS DISTINCT FROM agg.last_engaged_at)`)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: contact recount failed: %w", apperrors.ErrDatabase, result.Error)
	}
	return result.RowsAffected, nil
}

// RecountCompanyCounters rebuilds every company's contact and active
// conversation counts from the base tables.
func (r *PostgresRepo) RecountCompanyCounters(ctx context.Context) (int64, error) {
	result := r.conn(ctx).Exec(`
		UPDATE companies co
		SET total_contacts       = COALESCE(agg.total_contacts, 0),
		    active_conversations = COALESCE(agg.active_conversations, 0)
		FROM (
			SELECT co2.id,
			       COUNT(DISTINCT c.id) AS total_contacts,
			       COUNT(DISTINCT cv.id) FILTER (WHERE cv.status = ?) AS active_conversations
			FROM companies co2
			LEFT JOIN contacts c ON c.company_id = co2.id
			LEFT JOIN conversations cv ON cv.company_id = co2.id
			GROUP BY co2.id
		) agg
		WHERE agg.id = co.id
		  AND (co.total_contacts IS DISTINCT FROM COALESCE(agg.total_contacts, 0)
		    OR co.active_conversations IS DISTINCT FROM COALESCE(agg.active_conversations, 0))`,
		model.ConversationStatusActive)
	if result.Error != nil {
		return 0, fmt.Errorf("%w: company recount failed: %w", apperrors.ErrDatabase, result.Error)
	}
	return result.RowsAffected, nil
}
