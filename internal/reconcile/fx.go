package reconcile

import (
	"context"

	"go.uber.org/fx"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
)

var Module = fx.Module("reconcile",
	fx.Provide(func(cfg config.Config) Config {
		return Config{
			Interval:   cfg.Sync.Interval,
			MirrorBack: cfg.Sync.MirrorBack,
		}
	}),
	fx.Provide(NewEngine),
	fx.Provide(NewWorker),
	fx.Invoke(runWorker),
)

func runWorker(lc fx.Lifecycle, worker *Worker) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			go worker.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
