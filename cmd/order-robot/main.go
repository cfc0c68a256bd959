package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/channel"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/schedule"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/optout"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/reconcile"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/registration"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/server"
	"github.com/zhangsherry780-arch/order-robot-sub000/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		recordstore.Module,
		events.Module,
		registration.Module,
		optout.Module,
		dailyorder.Module,
		schedule.Module,
		reconcile.Module,
		channel.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
