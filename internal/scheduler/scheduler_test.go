package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/groundswell-app/groundswell/internal/config"
	redemptiondomain "github.com/groundswell-app/groundswell/internal/redemption/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

type fakeRedemptionService struct {
	redemptiondomain.Service

	calls    int
	lastAge  time.Duration
	resolved int
	err      error
}

func (f *fakeRedemptionService) Reconcile(ctx context.Context, olderThan time.Duration) (int, error) {
	f.calls++
	f.lastAge = olderThan
	return f.resolved, f.err
}

func TestRunOncePassesConfiguredAge(t *testing.T) {
	fake := &fakeRedemptionService{resolved: 2}
	reconciler := New(Params{
		Log: zaptest.NewLogger(t),
		Config: config.Config{Scheduler: config.SchedulerConfig{
			ReconcileIntervalSec: 60,
			ReconcileMinAgeSec:   600,
		}},
		Svc: fake,
	})

	reconciler.RunOnce(context.Background())
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, 10*time.Minute, fake.lastAge)
}

func TestRunOnceSurvivesErrors(t *testing.T) {
	fake := &fakeRedemptionService{err: errors.New("db down")}
	reconciler := New(Params{
		Log:    zaptest.NewLogger(t),
		Config: config.Config{},
		Svc:    fake,
	})

	reconciler.RunOnce(context.Background())
	reconciler.RunOnce(context.Background())
	assert.Equal(t, 2, fake.calls)

	// Zero config falls back to sane defaults.
	assert.Equal(t, 5*time.Minute, reconciler.interval)
	assert.Equal(t, 15*time.Minute, reconciler.minAge)
}

func TestStartStop(t *testing.T) {
	fake := &fakeRedemptionService{}
	reconciler := New(Params{
		Log: zaptest.NewLogger(t),
		Config: config.Config{Scheduler: config.SchedulerConfig{
			ReconcileIntervalSec: 1,
			ReconcileMinAgeSec:   1,
		}},
		Svc: fake,
	})

	ctx := context.Background()
	assert.NoError(t, reconciler.Start(ctx))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, reconciler.Stop(stopCtx))
}
