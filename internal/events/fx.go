package events

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("events",
	fx.Provide(NewJournal),
	fx.Invoke(func(lc fx.Lifecycle, journal *Journal) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return journal.Migrate()
			},
		})
	}),
)
