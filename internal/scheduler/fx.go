package scheduler

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, reconciler *Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return reconciler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return reconciler.Stop(ctx)
		},
	})
}
