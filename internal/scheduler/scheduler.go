package scheduler

import (
	"context"
	"time"

	"github.com/groundswell-app/groundswell/internal/config"
	redemptiondomain "github.com/groundswell-app/groundswell/internal/redemption/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reconciler periodically expires stale pending redemptions so a lost
// provider callback cannot strand a member's points.
type Reconciler struct {
	log      *zap.Logger
	svc      redemptiondomain.Service
	interval time.Duration
	minAge   time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

type Params struct {
	fx.In

	Log    *zap.Logger
	Config config.Config
	Svc    redemptiondomain.Service
}

func New(p Params) *Reconciler {
	interval := time.Duration(p.Config.Scheduler.ReconcileIntervalSec) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	minAge := time.Duration(p.Config.Scheduler.ReconcileMinAgeSec) * time.Second
	if minAge <= 0 {
		minAge = 15 * time.Minute
	}
	return &Reconciler{
		log:      p.Log.Named("scheduler.reconciler"),
		svc:      p.Svc,
		interval: interval,
		minAge:   minAge,
	}
}

func (r *Reconciler) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx)
	r.log.Info("redemption reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("min_age", r.minAge),
	)
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cancel == nil {
		return nil
	}
	r.cancel()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single reconcile pass.
func (r *Reconciler) RunOnce(ctx context.Context) {
	resolved, err := r.svc.Reconcile(ctx, r.minAge)
	if err != nil {
		r.log.Error("reconcile pass failed", zap.Error(err))
		return
	}
	if resolved > 0 {
		r.log.Info("reconcile pass finished", zap.Int("resolved", resolved))
	}
}
