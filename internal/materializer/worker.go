// Package materializer periodically recomputes the per-company overview
// rollup. It only ever reads the base tables and overwrites the rollup, so a
// run can be interrupted and restarted without partial-application hazards.
package materializer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/observer"
	"github.com/stratalink/engagement-engine/internal/storage"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

// refreshTask carries one company refresh into the worker pool.
type refreshTask struct {
	ctx       context.Context
	companyID string
	wg        *sync.WaitGroup
	refreshed *atomic.Int64
	failed    *atomic.Int64
}

// Worker runs the rollup recomputation on a fixed interval, fanning the
// per-company work across a bounded pool.
type Worker struct {
	companies  storage.CompanyRepo
	overviews  storage.OverviewRepo
	cfg        config.MaterializerConfig
	pool       *ants.PoolWithFunc
	baseLogger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates the materializer over the company and overview
// repositories.
func NewWorker(
	cfg config.MaterializerConfig,
	companies storage.CompanyRepo,
	overviews storage.OverviewRepo,
	baseLogger *zap.Logger,
) (*Worker, error) {
	worker := &Worker{
		companies:  companies,
		overviews:  overviews,
		cfg:        cfg,
		baseLogger: baseLogger.Named("materializer"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(refreshTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.refreshCompany(task)
	},
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in materializer worker",
				zap.Any("panic_error", err), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create materializer pool: %w", err)
	}
	worker.pool = pool
	return worker, nil
}

// Start launches the interval loop. The first run happens one interval after
// start, keeping process boot cheap.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		w.baseLogger.Info("Materializer started",
			zap.Duration("interval", w.cfg.Interval),
			zap.Int("pool_size", w.cfg.PoolSize))

		for {
			select {
			case <-ctx.Done():
				w.baseLogger.Info("Materializer stopping")
				return
			case <-ticker.C:
				if _, err := w.RunOnce(ctx); err != nil && ctx.Err() == nil {
					w.baseLogger.Error("Materializer run failed", zap.Error(err))
				}
			}
		}
	}()
}

// Stop cancels the loop, waits for it to exit, and releases the pool.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
	if w.pool != nil {
		w.pool.Release()
	}
	w.baseLogger.Info("Materializer stopped")
}

// RunOnce recomputes the rollup for every company and reports how many were
// refreshed. Individual company failures are logged and skipped; the run
// keeps going.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	ctx = logger.WithLogger(ctx, w.baseLogger)

	companyIDs, err := w.companies.ListIDs(ctx)
	if err != nil {
		observer.ObserveMaterializerRun(time.Since(start), 0, err)
		return 0, fmt.Errorf("failed to list companies for rollup: %w", err)
	}

	var wg sync.WaitGroup
	var refreshed, failed atomic.Int64
	for _, companyID := range companyIDs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		task := refreshTask{ctx: ctx, companyID: companyID, wg: &wg, refreshed: &refreshed, failed: &failed}
		if invokeErr := w.pool.Invoke(task); invokeErr != nil {
			wg.Done()
			failed.Add(1)
			w.baseLogger.Warn("Failed to submit rollup task",
				zap.String("company_id", companyID), zap.Error(invokeErr))
		}
	}
	wg.Wait()

	duration := time.Since(start)
	runErr := ctx.Err()
	observer.ObserveMaterializerRun(duration, int(refreshed.Load()), runErr)
	w.baseLogger.Info("Materializer run complete",
		zap.Int("companies", len(companyIDs)),
		zap.Int64("refreshed", refreshed.Load()),
		zap.Int64("failed", failed.Load()),
		zap.Duration("duration", duration))
	return int(refreshed.Load()), runErr
}

// refreshCompany recomputes and overwrites one company's rollup.
func (w *Worker) refreshCompany(task refreshTask) {
	defer task.wg.Done()
	if task.ctx.Err() != nil {
		return
	}

	overview, err := w.overviews.Compute(task.ctx, task.companyID)
	if err != nil {
		task.failed.Add(1)
		w.baseLogger.Error("Failed to compute company rollup",
			zap.String("company_id", task.companyID), zap.Error(err))
		return
	}
	if err := w.overviews.Upsert(task.ctx, overview); err != nil {
		task.failed.Add(1)
		w.baseLogger.Error("Failed to store company rollup",
			zap.String("company_id", task.companyID), zap.Error(err))
		return
	}
	task.refreshed.Add(1)
}
