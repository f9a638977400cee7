package orders

import "go.uber.org/fx"

// Module exposes the slot order service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
