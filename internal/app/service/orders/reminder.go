package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/types"
)

// SetReminder opts a buyer in or out of the pre-expiry notification. The
// reminder fires a configured number of days before the lease ends, one by
// default.
func (s *Service) SetReminder(ctx context.Context, tradeNo, userID string, optIn bool) (*models.AdOrder, error) {
	order, err := s.Get(ctx, tradeNo)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != userID {
		return nil, ErrNotOwner
	}

	updates := map[string]any{
		"reminder_opt_in": optIn,
		"remind_sent":     false,
	}
	if optIn {
		remindAt := order.EndAt.Add(-s.cfg.ReminderAdvance())
		updates["remind_at"] = remindAt
	} else {
		updates["remind_at"] = nil
	}
	if err := s.db.WithContext(ctx).Model(order).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update reminder: %w", err)
	}
	logctx.FromCtx(ctx, s.log).Infow("reminder_updated", "trade_no", tradeNo, "opt_in", optIn)
	return s.Get(ctx, tradeNo)
}

// DueReminders returns opted-in, unsent reminders whose time has come on
// still-occupying orders.
func (s *Service) DueReminders(ctx context.Context, now time.Time) ([]*models.AdOrder, error) {
	var rows []*models.AdOrder
	err := s.db.WithContext(ctx).
		Where("reminder_opt_in = ? AND remind_sent = ? AND remind_at <= ? AND status = ? AND end_at > ?",
			true, false, now, types.OrderStatusPaid, now).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load due reminders: %w", err)
	}
	return rows, nil
}

// MarkReminderSent flags a reminder delivered (or attempted; the sweep never
// retries a failed send).
func (s *Service) MarkReminderSent(ctx context.Context, tradeNo string, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.AdOrder{}).
		Where("trade_no = ?", tradeNo).
		Updates(map[string]any{
			"remind_sent":    true,
			"remind_sent_at": at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to flag reminder sent: %w", err)
	}
	return nil
}
