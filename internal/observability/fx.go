package observability

import (
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/logger"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/metrics"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/tracing"
)

var version = "dev"

var Module = fx.Module("observability",
	logger.Module,
	fx.Provide(func(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*sdktrace.TracerProvider, error) {
		return tracing.NewProvider(lc, tracing.Config{
			Enabled:          cfg.Tracing.Enabled,
			ServiceName:      "order-robot",
			ServiceVersion:   version,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
			ExporterProtocol: cfg.Tracing.ExporterProtocol,
			SamplingRatio:    cfg.Tracing.SamplingRatio,
		}, log)
	}),
	fx.Provide(func(cfg config.Config) metrics.Config {
		return metrics.Config{ServiceName: "order_robot", Environment: cfg.Environment}
	}),
	fx.Provide(metrics.HTTPWithConfig),
	fx.Provide(metrics.SyncWithConfig),
	fx.Provide(metrics.ChannelWithConfig),
)
