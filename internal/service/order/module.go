package order

import (
	"context"

	"go.uber.org/fx"
)

// Module provides the order service to Fx and ties its bootstrap and
// shutdown to the application lifecycle.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(func(lc fx.Lifecycle, svc *Service) {
		lc.Append(fx.Hook{
			OnStart: svc.Bootstrap,
			OnStop: func(ctx context.Context) error {
				return svc.Close(ctx)
			},
		})
	}),
)
