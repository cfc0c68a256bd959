package reconcile

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

type WorkerParams struct {
	fx.In

	Engine *Engine
	Log    *zap.Logger
	Config Config `optional:"true"`
}

// Worker runs the engine on a fixed interval. Each pass also refreshes
// the sync ratio gauge and, when enabled, backfills the ledger from the
// index.
type Worker struct {
	engine *Engine
	log    *zap.Logger
	cfg    Config
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		engine: p.Engine,
		log:    p.Log.Named("reconcile.worker"),
		cfg:    p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	w.engine.setRunning(true)
	defer w.engine.setRunning(false)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(ctx context.Context) {
	if _, err := w.engine.Reconcile(ctx); err != nil {
		w.log.Warn("reconciliation pass failed", zap.Error(err))
	}
	if w.cfg.MirrorBack {
		if _, err := w.engine.MirrorBack(ctx); err != nil {
			w.log.Warn("ledger backfill failed", zap.Error(err))
		}
	}
	if _, err := w.engine.SyncRatio(ctx); err != nil {
		w.log.Warn("sync ratio check failed", zap.Error(err))
	}
}
