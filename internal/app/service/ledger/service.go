package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/tool"
	"github.com/adboard/adboard/pkg/types"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUnknownPack         = errors.New("unknown credit pack")
	ErrUnknownConsumption  = errors.New("no such consumption to refund")
)

// Service owns the append-only credit ledger and its derived balance cache.
// All mutation paths are idempotent on the entry's external reference.
type Service struct {
	db   *gorm.DB
	cfg  *config.Config
	upay *upay.Client
	log  *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *config.Config, upayClient *upay.Client, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, upay: upayClient, log: log}
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	var row models.CreditBalance
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load balance: %w", err)
	}
	return row.Balance, nil
}

func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]*models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []*models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id desc").Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries: %w", err)
	}
	return rows, nil
}

// Credit appends a positive entry. Replays with the same externalRef are
// no-ops: the unique index rejects the duplicate row and the balance is left
// alone. Returns whether a new entry was actually written.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, externalRef string, reason types.LedgerReason) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("credit amount must be positive, got %d", amount)
	}
	if externalRef == "" {
		return false, fmt.Errorf("credit requires an external reference")
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.LedgerEntry{
			ExternalRef: externalRef,
			UserID:      userID,
			Delta:       amount,
			Reason:      reason,
		})
		if res.Error != nil {
			return fmt.Errorf("failed to append ledger entry: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil // replay
		}
		applied = true
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"balance": gorm.Expr("credit_balance.balance + ?", amount)}),
		}).Create(&models.CreditBalance{UserID: userID, Balance: amount}).Error
	})
	if err != nil {
		return false, err
	}
	if applied {
		logctx.FromCtx(ctx, s.log).Infow("credits_granted", "user_id", userID, "amount", amount, "ref", externalRef, "reason", reason)
	}
	return applied, nil
}

// Consume atomically reserves and spends credits. The conditional decrement
// on the balance row is the only concurrency guard: two racing consumers of
// the last credits see exactly one success. externalRef may be empty; one is
// generated so the ledger row is still replay-safe for callers that retry.
// Returns the reference, which Refund needs to compensate the entry later.
func (s *Service) Consume(ctx context.Context, userID string, amount int64, externalRef string, reason types.LedgerReason) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("consume amount must be positive, got %d", amount)
	}
	if externalRef == "" {
		externalRef = "CSM" + tool.GenerateUUIDV7()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.LedgerEntry{
			ExternalRef: externalRef,
			UserID:      userID,
			Delta:       -amount,
			Reason:      reason,
		})
		if entry.Error != nil {
			return fmt.Errorf("failed to append ledger entry: %w", entry.Error)
		}
		if entry.RowsAffected == 0 {
			return nil // replayed consumption already settled
		}

		res := tx.Model(&models.CreditBalance{}).
			Where("user_id = ? AND balance >= ?", userID, amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return fmt.Errorf("failed to decrement balance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInsufficientCredits
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	logctx.FromCtx(ctx, s.log).Infow("credits_consumed", "user_id", userID, "amount", amount, "ref", externalRef)
	return externalRef, nil
}

// Refund reverses an earlier consumption, restoring exactly what that entry
// took. The refund's reference is derived from the consumption's, so retrying
// a failed flow refunds at most once. Returns whether this call applied it.
func (s *Service) Refund(ctx context.Context, userID, consumeRef string) (bool, error) {
	if consumeRef == "" {
		return false, fmt.Errorf("refund requires the consumption reference")
	}

	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).
		First(&entry, "external_ref = ? AND user_id = ? AND reason = ?", consumeRef, userID, types.LedgerReasonConsume).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrUnknownConsumption
	}
	if err != nil {
		return false, fmt.Errorf("failed to load consumption: %w", err)
	}
	return s.Credit(ctx, userID, -entry.Delta, "RFD:"+consumeRef, types.LedgerReasonRefund)
}

// Recompute rebuilds the balance cache from the ledger. Admin repair tool.
func (s *Service) Recompute(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := tx.Model(&models.LedgerEntry{}).
			Where("user_id = ?", userID).
			Select("COALESCE(SUM(delta), 0)").
			Row()
		if err := row.Scan(&total); err != nil {
			return fmt.Errorf("failed to sum ledger: %w", err)
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{"balance": total}),
		}).Create(&models.CreditBalance{UserID: userID, Balance: total}).Error
	})
	if err != nil {
		return 0, err
	}
	logctx.FromCtx(ctx, s.log).Infow("balance_recomputed", "user_id", userID, "balance", total)
	return total, nil
}

// CreatePackOrder opens a gateway order for a credit pack. The trade number
// carries the AD prefix that routes its settlement callback back to the
// ledger.
func (s *Service) CreatePackOrder(ctx context.Context, userID, sku string) (*models.CreditOrder, error) {
	pack := s.cfg.GetCreditPackBySKU(sku)
	if pack == nil {
		return nil, ErrUnknownPack
	}

	order := &models.CreditOrder{
		TradeNo:     tool.NewTradeNo("AD"),
		UserID:      userID,
		SKU:         pack.SKU,
		Credits:     pack.Credits,
		AmountCents: pack.AmountCents,
		Currency:    s.cfg.SlotAds.Currency,
		Status:      types.OrderStatusCreated,
	}
	if err := s.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, fmt.Errorf("failed to create credit order: %w", err)
	}

	res, err := s.upay.CreateOrder(ctx, &upay.CreateOrderRequest{
		OrderID:     order.TradeNo,
		AmountCents: order.AmountCents,
		PayType:     s.cfg.Upay.DefaultType,
		NotifyURL:   s.cfg.NotifyURL(),
		RedirectURL: s.cfg.RedirectURL(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open gateway order: %w", err)
	}

	updates := map[string]any{
		"gateway_trade_id": res.TradeID,
		"payment_url":      res.PaymentURL,
	}
	if res.ExpiresAt != nil {
		updates["expires_at"] = *res.ExpiresAt
	}
	if err := s.db.WithContext(ctx).Model(order).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to attach gateway fields: %w", err)
	}
	order.GatewayTradeID = &res.TradeID
	order.PaymentURL = &res.PaymentURL
	order.ExpiresAt = res.ExpiresAt
	return order, nil
}

// SettlePackOrder marks a credit order paid and grants its credits. Driven by
// the settlement callback; replays settle nothing twice because both the
// status flip and the ledger append are idempotent.
func (s *Service) SettlePackOrder(ctx context.Context, tradeNo string, paidAt time.Time) error {
	var order models.CreditOrder
	err := s.db.WithContext(ctx).First(&order, "trade_no = ?", tradeNo).Error
	if err != nil {
		return fmt.Errorf("credit order %s not found: %w", tradeNo, err)
	}

	res := s.db.WithContext(ctx).Model(&models.CreditOrder{}).
		Where("trade_no = ? AND status = ?", tradeNo, types.OrderStatusCreated).
		Updates(map[string]any{
			"status":  types.OrderStatusPaid,
			"paid_at": paidAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to mark credit order paid: %w", res.Error)
	}

	// the ledger append carries its own idempotency, so running it on a
	// replayed callback is safe even though the status flip above was a no-op
	_, err = s.Credit(ctx, order.UserID, order.Credits, order.TradeNo, types.LedgerReasonPurchase)
	return err
}
