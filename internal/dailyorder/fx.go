package dailyorder

import (
	"go.uber.org/fx"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/service"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"

	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
)

var Module = fx.Module("dailyorder.service",
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service) optoutdomain.CountObserver {
		return svc
	}),
)
