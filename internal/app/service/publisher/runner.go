package publisher

import (
	"context"
	"time"

	"go.uber.org/fx"
)

// runner polls Tick on a fixed interval for the process lifetime. Multiple
// replicas may run it concurrently; claiming keeps firings exactly-once.
type runner struct {
	svc    *Service
	cancel context.CancelFunc
	done   chan struct{}
}

func startRunner(lc fx.Lifecycle, svc *Service) {
	r := &runner{svc: svc, done: make(chan struct{})}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			r.cancel = cancel
			go r.loop(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.cancel()
			select {
			case <-r.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (r *runner) loop(ctx context.Context) {
	defer close(r.done)
	interval := time.Duration(r.svc.cfg.TickIntervalSec) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.svc.Tick(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.svc.Tick(ctx, now)
		}
	}
}
