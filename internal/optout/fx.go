package optout

import (
	"go.uber.org/fx"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/service"
)

var Module = fx.Module("optout.service",
	fx.Provide(service.NewService),
)
