package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/app/service/schedule"
	"github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/channel"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/types"
)

// Service drives scheduled publication: claims due firings, renders the slot
// board, delivers it, and keeps the last delivered message's controls fresh.
type Service struct {
	cfg     *config.Config
	sched   *schedule.Service
	slots   *slots.Service
	orders  *orders.Service
	channel channel.Deliverer
	log     *zap.SugaredLogger
}

func NewService(
	cfg *config.Config,
	sched *schedule.Service,
	slotSvc *slots.Service,
	orderSvc *orders.Service,
	deliverer channel.Deliverer,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		cfg:     cfg,
		sched:   sched,
		slots:   slotSvc,
		orders:  orderSvc,
		channel: deliverer,
		log:     log,
	}
}

// Tick runs one scheduler pass: claim a due firing if any, then sweep due
// reminders. Safe to run from several processes; the claim is serialized in
// the database.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	snapshot, claimed, err := s.sched.ClaimFiring(ctx, now)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("claim_firing_failed", "err", err)
	} else if claimed {
		if err := s.fire(ctx, snapshot, *snapshot.LastFireAt); err != nil {
			// the claim already advanced next_fire_at; the board heals at the
			// next firing rather than replaying this one
			logctx.FromCtx(ctx, s.log).Errorw("firing_failed", "fire_at", snapshot.LastFireAt, "err", err)
		}
	}

	if _, err := s.orders.CancelExpired(ctx, now); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("cancel_expired_failed", "err", err)
	}
	s.sweepReminders(ctx, now)
}

// RunNow delivers immediately with the live config, without touching the
// schedule's own cadence.
func (s *Service) RunNow(ctx context.Context) error {
	cfg, err := s.sched.Get(ctx)
	if err != nil {
		return err
	}
	return s.fire(ctx, cfg, time.Now())
}

func (s *Service) fire(ctx context.Context, snapshot *models.ScheduleConfig, fireAt time.Time) error {
	text, rows, err := s.renderBoard(ctx, fireAt)
	if err != nil {
		return err
	}
	if snapshot.MessageTemplate != "" {
		text = RenderText(snapshot.MessageTemplate, fireAt)
	}

	ref, err := s.channel.Deliver(ctx, text, rows)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}

	if snapshot.DeletePrevious && snapshot.LastMessageChatID != nil && snapshot.LastMessageID != nil {
		prev := channel.MessageRef{ChatID: *snapshot.LastMessageChatID, MessageID: *snapshot.LastMessageID}
		if err := s.channel.Delete(ctx, prev); err != nil && !errors.Is(err, channel.ErrNotFound) {
			logctx.FromCtx(ctx, s.log).Warnw("delete_previous_failed", "ref", prev, "err", err)
		}
	}
	if snapshot.AutoPin {
		if err := s.channel.Pin(ctx, ref); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("auto_pin_failed", "ref", ref, "err", err)
		}
	}

	if err := s.sched.SetLastMessage(ctx, ref.ChatID, ref.MessageID); err != nil {
		return err
	}
	logctx.FromCtx(ctx, s.log).Infow("board_delivered", "fire_at", fireAt, "message", ref.String())
	return nil
}

// RefreshLast re-renders the control rows onto the last delivered message.
// Called after terminations and creative edits; an unpatchable message is a
// benign outcome because the next firing carries the fresh board anyway.
func (s *Service) RefreshLast(ctx context.Context) error {
	cfg, err := s.sched.Get(ctx)
	if err != nil {
		return err
	}
	if cfg.LastMessageChatID == nil || cfg.LastMessageID == nil {
		return nil
	}
	_, rows, err := s.renderBoard(ctx, time.Now())
	if err != nil {
		return err
	}
	ref := channel.MessageRef{ChatID: *cfg.LastMessageChatID, MessageID: *cfg.LastMessageID}
	err = s.channel.PatchControls(ctx, ref, rows)
	if errors.Is(err, channel.ErrNotFound) || errors.Is(err, channel.ErrTooOld) {
		logctx.FromCtx(ctx, s.log).Infow("refresh_skipped", "ref", ref, "reason", err)
		return nil
	}
	return err
}

func (s *Service) renderBoard(ctx context.Context, now time.Time) (string, [][]types.SlotControl, error) {
	slotRows, err := s.slots.GetAll(ctx)
	if err != nil {
		return "", nil, err
	}
	active, err := s.orders.ActiveOrders(ctx, now)
	if err != nil {
		return "", nil, err
	}
	occupancy, err := s.orders.Occupancy(ctx, now)
	if err != nil {
		return "", nil, err
	}

	creativeIDs := lo.Map(lo.Values(active), func(o *models.AdOrder, _ int) string {
		return o.CreativeID
	})
	creatives, err := s.orders.CreativesByIDs(ctx, creativeIDs)
	if err != nil {
		return "", nil, err
	}

	occupied := make(map[int]bool, len(occupancy))
	for slotID := range occupancy {
		occupied[slotID] = true
	}

	rows := ControlRows(slotRows, active, creatives, occupied, s.cfg.Channel.BotUsername)
	return RenderText("{date}", now), rows, nil
}

func (s *Service) sweepReminders(ctx context.Context, now time.Time) {
	due, err := s.orders.DueReminders(ctx, now)
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("reminder_sweep_failed", "err", err)
		return
	}
	for _, order := range due {
		text := fmt.Sprintf(
			"Your ad in slot %d runs until %s. Renewal is open now.",
			order.SlotID, order.EndAt.Format("2006-01-02 15:04"),
		)
		if err := s.channel.Notify(ctx, order.BuyerID, text, nil); err != nil {
			logctx.FromCtx(ctx, s.log).Warnw("reminder_send_failed", "trade_no", order.TradeNo, "err", err)
		}
		// flagged sent either way; a failed send is not retried
		if err := s.orders.MarkReminderSent(ctx, order.TradeNo, now); err != nil {
			logctx.FromCtx(ctx, s.log).Errorw("reminder_flag_failed", "trade_no", order.TradeNo, "err", err)
		}
	}
}
