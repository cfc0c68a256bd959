package channel

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/metrics"
)

var Module = fx.Module("channel",
	fx.Provide(func(cfg config.Config) Config {
		return Config{
			Enabled:           cfg.Channel.Enabled,
			Endpoint:          cfg.Channel.Endpoint,
			AppID:             cfg.Channel.AppID,
			AppSecret:         cfg.Channel.AppSecret,
			ForwardPort:       cfg.Channel.ForwardPort,
			HeartbeatInterval: cfg.Channel.HeartbeatInterval,
			ReconnectDelay:    cfg.Channel.ReconnectDelay,
			RetryDelay:        cfg.Channel.RetryDelay,
			SendTimeout:       cfg.Channel.SendTimeout,
			QueueSize:         cfg.Channel.QueueSize,
		}
	}),
	fx.Provide(NewSupervisor),
	fx.Provide(func(cfg Config, supervisor *Supervisor, m *metrics.ChannelMetrics, log *zap.Logger) *Manager {
		return NewManager(cfg, NewWebsocketTransport(cfg), NewForwarder(cfg), supervisor, m, log)
	}),
	fx.Invoke(runManager),
)

func runManager(lc fx.Lifecycle, cfg Config, manager *Manager, log *zap.Logger) {
	if !cfg.Enabled {
		log.Named("channel").Info("event channel disabled, not starting")
		return
	}

	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, c := context.WithCancel(context.Background())
			cancel = c
			go manager.Run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			manager.Shutdown()
			return nil
		},
	})
}
