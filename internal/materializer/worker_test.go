package materializer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/stratalink/engagement-engine/internal/config"
	"github.com/stratalink/engagement-engine/internal/model"
	storagemock "github.com/stratalink/engagement-engine/internal/storage/mock"
	"github.com/stratalink/engagement-engine/pkg/logger"
)

func newTestWorker(t *testing.T) (*Worker, *storagemock.CompanyRepoMock, *storagemock.OverviewRepoMock) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	companies := new(storagemock.CompanyRepoMock)
	overviews := new(storagemock.OverviewRepoMock)
	cfg := config.MaterializerConfig{
		Enabled:  true,
		Interval: time.Minute,
		PoolSize: 2,
	}
	worker, err := NewWorker(cfg, companies, overviews, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		worker.pool.Release()
	})
	return worker, companies, overviews
}

func TestWorker_RunOnce_RefreshesEveryCompany(t *testing.T) {
	worker, companies, overviews := newTestWorker(t)

	companies.On("ListIDs", mock.Anything).Return([]string{"company-1", "company-2", "company-3"}, nil)
	for _, companyID := range []string{"company-1", "company-2", "company-3"} {
		overview := &model.CompanyOverview{CompanyID: companyID}
		overviews.On("Compute", mock.Anything, companyID).Return(overview, nil)
		overviews.On("Upsert", mock.Anything, overview).Return(nil)
	}

	refreshed, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, refreshed)
	companies.AssertExpectations(t)
	overviews.AssertExpectations(t)
}

func TestWorker_RunOnce_SkipsFailedCompany(t *testing.T) {
	worker, companies, overviews := newTestWorker(t)

	companies.On("ListIDs", mock.Anything).Return([]string{"company-ok", "company-broken"}, nil)
	okOverview := &model.CompanyOverview{CompanyID: "company-ok"}
	overviews.On("Compute", mock.Anything, "company-ok").Return(okOverview, nil)
	overviews.On("Upsert", mock.Anything, okOverview).Return(nil)
	overviews.On("Compute", mock.Anything, "company-broken").Return(nil, errors.New("aggregate query failed"))

	refreshed, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, refreshed)
	overviews.AssertNotCalled(t, "Upsert", mock.Anything, mock.MatchedBy(func(o *model.CompanyOverview) bool {
		return o.CompanyID == "company-broken"
	}))
}

func TestWorker_RunOnce_ListFailureAborts(t *testing.T) {
	worker, companies, overviews := newTestWorker(t)

	companies.On("ListIDs", mock.Anything).Return(nil, errors.New("db down"))

	refreshed, err := worker.RunOnce(context.Background())
	assert.Error(t, err)
	assert.Zero(t, refreshed)
	overviews.AssertNotCalled(t, "Compute", mock.Anything, mock.Anything)
}

func TestWorker_RunOnce_NoCompanies(t *testing.T) {
	worker, companies, _ := newTestWorker(t)

	companies.On("ListIDs", mock.Anything).Return([]string{}, nil)

	refreshed, err := worker.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, refreshed)
}

func TestWorker_StartStop(t *testing.T) {
	logger.Log = zaptest.NewLogger(t).Named("test")
	companies := new(storagemock.CompanyRepoMock)
	overviews := new(storagemock.OverviewRepoMock)
	companies.On("ListIDs", mock.Anything).Return([]string{}, nil).Maybe()

	cfg := config.MaterializerConfig{
		Enabled:  true,
		Interval: 10 * time.Millisecond,
		PoolSize: 1,
	}
	worker, err := NewWorker(cfg, companies, overviews, zaptest.NewLogger(t))
	require.NoError(t, err)

	worker.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	worker.Stop()
}
