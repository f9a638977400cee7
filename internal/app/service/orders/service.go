package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adboard/adboard/internal/app/service/schedule"
	"github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/moderation"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/tool"
	"github.com/adboard/adboard/pkg/types"
)

// Service owns the slot lease order lifecycle: admission, purchase, renewal,
// settlement activation, termination and creative edits.
type Service struct {
	db       *gorm.DB
	cfg      *config.Config
	sched    *schedule.Service
	slots    *slots.Service
	upay     *upay.Client
	reviewer moderation.Reviewer
	log      *zap.SugaredLogger
}

func NewService(
	db *gorm.DB,
	cfg *config.Config,
	sched *schedule.Service,
	slotSvc *slots.Service,
	upayClient *upay.Client,
	reviewer moderation.Reviewer,
	log *zap.SugaredLogger,
) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		sched:    sched,
		slots:    slotSvc,
		upay:     upayClient,
		reviewer: reviewer,
		log:      log,
	}
}

// Occupant returns the paid order holding the slot at now, if any. A paid
// order with a future start still holds the slot: the lease is reserved even
// though the ad is not showing yet.
func (s *Service) Occupant(ctx context.Context, slotID int, now time.Time) (*models.AdOrder, error) {
	var row models.AdOrder
	err := s.db.WithContext(ctx).
		Where("slot_id = ? AND status = ? AND end_at > ?", slotID, types.OrderStatusPaid, now).
		Order("end_at desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %d occupant: %w", slotID, err)
	}
	return &row, nil
}

// ActiveOrders returns the showing order per slot at now, keyed by slot id.
func (s *Service) ActiveOrders(ctx context.Context, now time.Time) (map[int]*models.AdOrder, error) {
	var rows []*models.AdOrder
	err := s.db.WithContext(ctx).
		Where("status = ? AND start_at <= ? AND end_at > ?", types.OrderStatusPaid, now, now).
		Order("end_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active orders: %w", err)
	}
	out := make(map[int]*models.AdOrder, len(rows))
	for _, row := range rows {
		// later end_at wins should two windows ever touch at a boundary
		out[row.SlotID] = row
	}
	return out, nil
}

// Occupancy returns the occupying order per slot at now, including reserved
// leases whose window has not opened yet.
func (s *Service) Occupancy(ctx context.Context, now time.Time) (map[int]*models.AdOrder, error) {
	var rows []*models.AdOrder
	err := s.db.WithContext(ctx).
		Where("status = ? AND end_at > ?", types.OrderStatusPaid, now).
		Order("end_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load occupancy: %w", err)
	}
	out := make(map[int]*models.AdOrder, len(rows))
	for _, row := range rows {
		out[row.SlotID] = row
	}
	return out, nil
}

// CreativesByIDs bulk-loads creatives keyed by id.
func (s *Service) CreativesByIDs(ctx context.Context, ids []string) (map[string]*models.Creative, error) {
	if len(ids) == 0 {
		return map[string]*models.Creative{}, nil
	}
	var rows []*models.Creative
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load creatives: %w", err)
	}
	out := make(map[string]*models.Creative, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Admission decides what userID may do with the slot at now. Blocked is a
// normal outcome, not an error; the decision carries when the slot opens up.
func (s *Service) Admission(ctx context.Context, slotID int, userID string, now time.Time) (*types.AdmissionDecision, error) {
	slot, err := s.slots.Get(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if !slot.PurchaseEnabled {
		return &types.AdmissionDecision{
			Mode:   types.AdmissionModeBlocked,
			Reason: types.AdmissionReasonSlotDisabled,
		}, nil
	}

	occupant, err := s.occupantForQuote(ctx, slotID, now)
	if err != nil {
		return nil, err
	}
	if occupant == nil {
		return &types.AdmissionDecision{Mode: types.AdmissionModeBuy}, nil
	}

	if occupant.BuyerID != userID {
		availableAt := occupant.EndAt
		return &types.AdmissionDecision{
			Mode:        types.AdmissionModeBlocked,
			Reason:      types.AdmissionReasonOccupied,
			AvailableAt: &availableAt,
		}, nil
	}

	renewOpensAt := occupant.EndAt.Add(-s.cfg.ProtectWindow())
	if now.Before(renewOpensAt) {
		return &types.AdmissionDecision{
			Mode:        types.AdmissionModeBlocked,
			Reason:      types.AdmissionReasonRenewClosed,
			AvailableAt: &renewOpensAt,
		}, nil
	}
	renewStart := occupant.EndAt
	return &types.AdmissionDecision{
		Mode:         types.AdmissionModeRenew,
		RenewStartAt: &renewStart,
	}, nil
}

// occupantForQuote picks which occupancy boundary an outsider is quoted.
// With quote_post_renewal on (the default), a landed renewal pushes the
// quoted availability to the renewed end.
func (s *Service) occupantForQuote(ctx context.Context, slotID int, now time.Time) (*models.AdOrder, error) {
	if s.cfg.SlotAds.QuotePostRenewal {
		return s.Occupant(ctx, slotID, now)
	}
	var row models.AdOrder
	err := s.db.WithContext(ctx).
		Where("slot_id = ? AND status = ? AND end_at > ?", slotID, types.OrderStatusPaid, now).
		Order("end_at asc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %d occupant: %w", slotID, err)
	}
	return &row, nil
}

// PurchaseParams is a buy or renew intent with its creative.
type PurchaseParams struct {
	UserID     string
	SlotID     int
	PlanDays   int
	ButtonText string
	ButtonURL  string
	Style      *types.ControlStyle
}

// Purchase runs the full buy flow: admission, moderation, lease window
// computation, order + creative rows, gateway order. The returned order
// carries the payment URL; it occupies nothing until settled.
func (s *Service) Purchase(ctx context.Context, params *PurchaseParams) (*models.AdOrder, error) {
	now := time.Now()
	plan := s.cfg.GetLeasePlanByDays(params.PlanDays)
	if plan == nil {
		return nil, ErrUnknownPlan
	}

	decision, err := s.Admission(ctx, params.SlotID, params.UserID, now)
	if err != nil {
		return nil, err
	}

	var startAt time.Time
	switch decision.Mode {
	case types.AdmissionModeBuy:
		startAt, err = s.sched.NextPlannedStart(ctx, now)
		if err != nil {
			return nil, err
		}
	case types.AdmissionModeRenew:
		startAt = *decision.RenewStartAt
	default:
		switch decision.Reason {
		case types.AdmissionReasonSlotDisabled:
			return nil, ErrSlotDisabled
		case types.AdmissionReasonRenewClosed:
			return nil, ErrRenewNotOpen
		default:
			return nil, ErrSlotOccupied
		}
	}

	creative, err := s.screenCreative(ctx, params.UserID, params.ButtonText, params.ButtonURL, params.Style)
	if err != nil {
		return nil, err
	}

	endAt := startAt.Add(time.Duration(plan.Days) * 24 * time.Hour)
	expiresAt := now.Add(time.Duration(s.cfg.Upay.ExpireMinutes) * time.Minute)
	order := &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      params.SlotID,
		BuyerID:     params.UserID,
		CreativeID:  creative.ID,
		PlanDays:    plan.Days,
		AmountCents: plan.AmountCents,
		Currency:    s.cfg.SlotAds.Currency,
		Status:      types.OrderStatusCreated,
		ExpiresAt:   &expiresAt,
		StartAt:     startAt,
		EndAt:       endAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(creative).Error; err != nil {
			return fmt.Errorf("failed to create creative: %w", err)
		}
		if err := tx.Create(order).Error; err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	res, err := s.upay.CreateOrder(ctx, &upay.CreateOrderRequest{
		OrderID:     order.TradeNo,
		AmountCents: order.AmountCents,
		PayType:     s.cfg.Upay.DefaultType,
		NotifyURL:   s.cfg.NotifyURL(),
		RedirectURL: s.cfg.RedirectURL(),
	})
	if err != nil {
		// order stays created; the buyer can retry and the row expires unpaid
		return nil, fmt.Errorf("failed to open gateway order: %w", err)
	}

	updates := map[string]any{
		"gateway_trade_id": res.TradeID,
		"payment_url":      res.PaymentURL,
	}
	if res.ExpiresAt != nil {
		updates["expires_at"] = *res.ExpiresAt
		order.ExpiresAt = res.ExpiresAt
	}
	if err := s.db.WithContext(ctx).Model(order).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to attach gateway fields: %w", err)
	}
	order.GatewayTradeID = &res.TradeID
	order.PaymentURL = &res.PaymentURL

	logctx.FromCtx(ctx, s.log).Infow("slot_order_created",
		"trade_no", order.TradeNo,
		"slot_id", order.SlotID,
		"buyer_id", order.BuyerID,
		"mode", decision.Mode,
		"start_at", order.StartAt,
		"end_at", order.EndAt,
	)
	return order, nil
}

func (s *Service) screenCreative(ctx context.Context, ownerID, buttonText, buttonURL string, style *types.ControlStyle) (*models.Creative, error) {
	control := types.SlotControl{Label: buttonText, URL: buttonURL, Style: style}
	if err := slots.ValidateControl(&control, s.cfg); err != nil {
		return nil, err
	}
	verdict, err := s.reviewer.Review(ctx, control.Label, control.URL)
	if err != nil {
		return nil, fmt.Errorf("moderation failed: %w", err)
	}
	if !verdict.Passed {
		return nil, &ModerationError{Verdict: verdict}
	}
	return &models.Creative{
		ID:         tool.GenerateUUIDV7(),
		OwnerID:    ownerID,
		ButtonText: control.Label,
		ButtonURL:  control.URL,
		Style:      control.Style,
		Verdict:    datatypes.NewJSONType(verdict),
	}, nil
}

// MarkPaid flips an order to paid after settlement. Replays return applied
// false without touching the row. The overlap guard rejects late payments on
// a slot that was resold while the order sat unpaid.
func (s *Service) MarkPaid(ctx context.Context, tradeNo string, paidAt time.Time) (bool, error) {
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.AdOrder
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "trade_no = ?", tradeNo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if order.Status != types.OrderStatusCreated {
			return nil // already settled, terminated or canceled
		}

		// settlements for one slot serialize on the slot row; without it two
		// concurrent callbacks could each count zero paid overlaps and both
		// commit
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&models.Slot{}, "slot_id = ?", order.SlotID).Error; err != nil {
			return fmt.Errorf("failed to lock slot %d: %w", order.SlotID, err)
		}

		var overlapping int64
		err = tx.Model(&models.AdOrder{}).
			Where("slot_id = ? AND status = ? AND trade_no <> ? AND start_at < ? AND end_at > ?",
				order.SlotID, types.OrderStatusPaid, order.TradeNo, order.EndAt, order.StartAt).
			Count(&overlapping).Error
		if err != nil {
			return fmt.Errorf("failed to check lease overlap: %w", err)
		}
		if overlapping > 0 {
			return ErrLeaseOverlap
		}

		res := tx.Model(&models.AdOrder{}).
			Where("trade_no = ? AND status = ?", tradeNo, types.OrderStatusCreated).
			Updates(map[string]any{
				"status":  types.OrderStatusPaid,
				"paid_at": paidAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark order paid: %w", res.Error)
		}
		applied = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	if applied {
		logctx.FromCtx(ctx, s.log).Infow("slot_order_paid", "trade_no", tradeNo, "paid_at", paidAt)
	}
	return applied, nil
}

// CancelExpired sweeps created orders whose payment deadline passed. A late
// callback can no longer activate them; the gateway reports them expired too.
func (s *Service) CancelExpired(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.AdOrder{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", types.OrderStatusCreated, now).
		Update("status", types.OrderStatusCanceled)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to cancel expired orders: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		logctx.FromCtx(ctx, s.log).Infow("expired_orders_canceled", "count", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// Terminate ends a showing lease early. One-way: only derived-active orders
// qualify, and the conditional window predicate keeps a racing expiry or
// double terminate from producing two transitions.
func (s *Service) Terminate(ctx context.Context, tradeNo, reason string, now time.Time) (*models.AdOrder, error) {
	res := s.db.WithContext(ctx).Model(&models.AdOrder{}).
		Where("trade_no = ? AND status = ? AND start_at <= ? AND end_at > ?",
			tradeNo, types.OrderStatusPaid, now, now).
		Updates(map[string]any{
			"status":           types.OrderStatusTerminated,
			"terminated_at":    now,
			"terminate_reason": reason,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to terminate order: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var order models.AdOrder
		err := s.db.WithContext(ctx).First(&order, "trade_no = ?", tradeNo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load order: %w", err)
		}
		return nil, ErrOrderNotActive
	}

	order, err := s.Get(ctx, tradeNo)
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("slot_order_terminated", "trade_no", tradeNo, "reason", reason)
	return order, nil
}

func (s *Service) Get(ctx context.Context, tradeNo string) (*models.AdOrder, error) {
	var order models.AdOrder
	err := s.db.WithContext(ctx).First(&order, "trade_no = ?", tradeNo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

func (s *Service) GetCreative(ctx context.Context, creativeID string) (*models.Creative, error) {
	var creative models.Creative
	if err := s.db.WithContext(ctx).First(&creative, "id = ?", creativeID).Error; err != nil {
		return nil, fmt.Errorf("failed to load creative %s: %w", creativeID, err)
	}
	return &creative, nil
}

// UserOrders lists a buyer's orders, newest first.
func (s *Service) UserOrders(ctx context.Context, userID string) ([]*models.AdOrder, error) {
	var rows []*models.AdOrder
	err := s.db.WithContext(ctx).
		Where("buyer_id = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load user orders: %w", err)
	}
	return rows, nil
}

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan is the admin order query: optional filters over raw columns with
// offset pagination.
func (s *Service) Scan(ctx context.Context, filters []*types.CommonFilter, offset, limit int) ([]*models.AdOrder, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := s.db.WithContext(ctx).Model(&models.AdOrder{})
	if len(filters) > 0 {
		q = q.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: filters}}})
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}
	var rows []*models.AdOrder
	err := q.Order("created_at desc").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan orders: %w", err)
	}
	return rows, total, nil
}
