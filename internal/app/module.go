package app

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/adboard/adboard/internal/app/api/server"
	"github.com/adboard/adboard/internal/app/service/ledger"
	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/app/service/publisher"
	"github.com/adboard/adboard/internal/app/service/schedule"
	"github.com/adboard/adboard/internal/app/service/settlement"
	"github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/platform/channel"
	"github.com/adboard/adboard/internal/platform/db"
	"github.com/adboard/adboard/internal/platform/moderation"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	upay.Module,
	channel.Module,
	moderation.Module,
	schedule.Module,
	slots.Module,
	orders.Module,
	ledger.Module,
	settlement.Module,
	publisher.Module,
	server.Module,
	fx.Invoke(bootstrap),
)

// bootstrap seeds the singleton schedule row and the fixed slot set.
func bootstrap(lc fx.Lifecycle, sched *schedule.Service, slotSvc *slots.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sched.EnsureConfig(ctx); err != nil {
				return err
			}
			return slotSvc.EnsureSlots(ctx)
		},
	})
}
