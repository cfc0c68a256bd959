package recordstore

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("recordstore",
	fx.Provide(New),
	fx.Invoke(func(lc fx.Lifecycle, store *Store) {
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				return store.Migrate()
			},
		})
	}),
)
