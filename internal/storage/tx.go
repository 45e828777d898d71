package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/stratalink/engagement-engine/internal/apperrors"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

type txContextKey struct{}

// withTxConn binds an open transaction to the context so nested repository
// calls join it instead of opening their own.
func withTxConn(ctx context.Context, tx *gorm.DB) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// conn returns the transaction bound to ctx, or the base connection.
func (r *PostgresRepo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey{}).(*gorm.DB); ok {
		return tx
	}
	return r.db.WithContext(ctx)
}

// WithTx runs fn inside a single database transaction. Every repository call
// made with the context passed to fn joins that transaction; the whole unit
// commits or rolls back together. Commit errors are mapped through
// checkConstraintViolation so contention surfaces as ErrConflict.
func (r *PostgresRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", apperrors.ErrDatabase, tx.Error)
	}

	var txErr error
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback().Error; rbErr != nil {
				logger.FromContext(ctx).Error("Failed to rollback transaction after error",
					zap.Error(rbErr), zap.NamedError("originalTxError", txErr))
			}
		}
	}()

	if txErr = fn(withTxConn(ctx, tx)); txErr != nil {
		return txErr
	}

	if commitErr := tx.Commit().Error; commitErr != nil {
		txErr = checkConstraintViolation(commitErr)
		return txErr
	}
	return nil
}
