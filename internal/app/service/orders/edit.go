package orders

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/types"
)

// EditParams swaps an order's creative. Force (admin) bypasses ownership and
// the daily limit but never the moderation gate.
type EditParams struct {
	TradeNo    string
	EditorID   string
	EditorType models.EditorType
	ButtonText string
	ButtonURL  string
	Style      *types.ControlStyle
	Note       *string
}

// EditCreative replaces the creative on an occupying order. The old creative
// row is kept and an audit row links the swap; the per-day counter is read
// inside the same transaction that appends the audit row, so concurrent edits
// cannot slip past the limit unnoticed.
func (s *Service) EditCreative(ctx context.Context, params *EditParams) (*models.Creative, error) {
	now := time.Now()
	order, err := s.Get(ctx, params.TradeNo)
	if err != nil {
		return nil, err
	}
	if params.EditorType != models.EditorTypeAdmin && order.BuyerID != params.EditorID {
		return nil, ErrNotOwner
	}
	if !order.OccupiesAt(now) {
		return nil, ErrOrderNotActive
	}

	creative, err := s.screenCreative(ctx, order.BuyerID, params.ButtonText, params.ButtonURL, params.Style)
	if err != nil {
		return nil, err
	}

	dayKey := models.DayKeyFor(now)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if params.EditorType != models.EditorTypeAdmin {
			var used int64
			err := tx.Model(&models.OrderEdit{}).
				Where("trade_no = ? AND day_key = ? AND editor_type = ?",
					order.TradeNo, dayKey, models.EditorTypeUser).
				Count(&used).Error
			if err != nil {
				return fmt.Errorf("failed to count edits: %w", err)
			}
			if used >= int64(s.cfg.SlotAds.EditLimitPerDay) {
				return ErrEditLimit
			}
		}

		if err := tx.Create(creative).Error; err != nil {
			return fmt.Errorf("failed to create creative: %w", err)
		}
		res := tx.Model(&models.AdOrder{}).
			Where("trade_no = ? AND creative_id = ?", order.TradeNo, order.CreativeID).
			Update("creative_id", creative.ID)
		if res.Error != nil {
			return fmt.Errorf("failed to relink creative: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// a concurrent edit relinked first; retryable from the caller
			return fmt.Errorf("creative changed concurrently on %s", order.TradeNo)
		}

		return tx.Create(&models.OrderEdit{
			TradeNo:       order.TradeNo,
			DayKey:        dayKey,
			EditorType:    params.EditorType,
			EditorID:      &params.EditorID,
			OldCreativeID: order.CreativeID,
			NewCreativeID: creative.ID,
			Note:          params.Note,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	logctx.FromCtx(ctx, s.log).Infow("creative_edited",
		"trade_no", order.TradeNo,
		"editor_type", params.EditorType,
		"new_creative_id", creative.ID,
	)
	return creative, nil
}

// EditHistory lists the audit rows for an order, newest first.
func (s *Service) EditHistory(ctx context.Context, tradeNo string) ([]*models.OrderEdit, error) {
	var rows []*models.OrderEdit
	err := s.db.WithContext(ctx).
		Where("trade_no = ?", tradeNo).
		Order("id desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load edit history: %w", err)
	}
	return rows, nil
}
