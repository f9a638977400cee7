package settlement

import "go.uber.org/fx"

// Module exposes the settlement service via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
)
