package registration

import (
	"go.uber.org/fx"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/service"
)

var Module = fx.Module("registration.service",
	fx.Provide(service.NewService),
)
