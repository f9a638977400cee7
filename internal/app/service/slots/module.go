package slots

import "go.uber.org/fx"

// Module exposes the slots service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
