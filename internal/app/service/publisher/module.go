package publisher

import "go.uber.org/fx"

// Module exposes the publisher service and its tick loop via Fx.
var Module = fx.Options(
	fx.Provide(NewService),
	fx.Invoke(startRunner),
)
