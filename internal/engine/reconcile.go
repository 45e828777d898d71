package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

// Reconciler repairs aggregate counter drift by recounting every cached
// aggregate from the base tables. It is an operational tool, not part of the
// steady-state write path.
type Reconciler struct {
	repo storage.ReconcileRepo
}

// NewReconciler creates a Reconciler over the recount repository.
func NewReconciler(repo storage.ReconcileRepo) *Reconciler {
	return &Reconciler{repo: repo}
}

// ReconcileReport records how many rows each recount pass corrected.
type ReconcileReport struct {
	ConversationsFixed int64 `json:"conversations_fixed"`
	ContactsFixed      int64 `json:"contacts_fixed"`
	CompaniesFixed     int64 `json:"companies_fixed"`
}

// Run recounts conversation, contact, and company aggregates in dependency
// order so each pass reads already-repaired values from the one before it.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	log := logger.FromContext(ctx)
	report := &ReconcileReport{}

	fixed, err := r.repo.RecountConversations(ctx)
	if err != nil {
		return nil, err
	}
	report.ConversationsFixed = fixed
	log.Info("Reconciled conversation aggregates", zap.Int64("rows_fixed", fixed))

	fixed, err = r.repo.RecountContacts(ctx)
	if err != nil {
		return nil, err
	}
	report.ContactsFixed = fixed
	log.Info("Reconciled contact aggregates", zap.Int64("rows_fixed", fixed))

	fixed, err = r.repo.RecountCompanies(ctx)
	if err != nil {
		return nil, err
	}
	report.CompaniesFixed = fixed
	log.Info("Reconciled company aggregates", zap.Int64("rows_fixed", fixed))

	return report, nil
}
