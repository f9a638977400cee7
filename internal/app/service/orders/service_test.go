package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adboard/adboard/internal/app/service/schedule"
	"github.com/adboard/adboard/internal/app/service/slots"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/moderation"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/tool"
	"github.com/adboard/adboard/pkg/types"
)

func fakeGateway(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"trade_id":"GT-1","payment_url":"https://gateway.example/pay/GT-1"}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, gatewayURL string) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "orders.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.ScheduleConfig{},
		&models.Slot{},
		&models.Creative{},
		&models.AdOrder{},
		&models.OrderEdit{},
	))

	cfg := &config.Config{
		Upay: config.UpayConfig{
			BaseURL:       gatewayURL,
			SecretKey:     "secret",
			PublicBaseURL: "https://ads.example",
			NotifyPath:    "/api/upay/notify",
			RedirectPath:  "/pay/return",
			DefaultType:   "usdt-trc20",
			ExpireMinutes: 30,
		},
		SlotAds: config.SlotAdsConfig{
			SlotCount:           10,
			Currency:            "USDT",
			Plans:               []*types.LeasePlan{{SKU: "d31", Days: 31, AmountCents: 10000}},
			ProtectDays:         7,
			FreezeWindowSec:     300,
			EditLimitPerDay:     3,
			ReminderAdvanceDays: 1,
			QuotePostRenewal:    true,
			ButtonTextMaxLen:    30,
			ButtonURLMaxLen:     256,
		},
	}
	log := zap.NewNop().Sugar()
	sched := schedule.NewService(db, cfg, log)
	slotSvc := slots.NewService(db, cfg, log)
	svc := NewService(db, cfg, sched, slotSvc, upay.NewClient(cfg, log), moderation.NewHeuristicReviewer(log), log)

	ctx := context.Background()
	require.NoError(t, sched.EnsureConfig(ctx))
	require.NoError(t, slotSvc.EnsureSlots(ctx))
	return svc
}

func insertOrder(t *testing.T, db *gorm.DB, order *models.AdOrder) {
	t.Helper()
	if order.CreativeID == "" {
		order.CreativeID = tool.GenerateUUIDV7()
	}
	if order.Currency == "" {
		order.Currency = "USDT"
	}
	require.NoError(t, db.Create(order).Error)
}

func TestMarkPaidRejectsOverlappingSettlement(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()
	now := time.Now()

	first := &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      3,
		BuyerID:     "alice",
		PlanDays:    31,
		AmountCents: 10000,
		Status:      types.OrderStatusCreated,
		StartAt:     now,
		EndAt:       now.Add(31 * 24 * time.Hour),
	}
	second := &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      3,
		BuyerID:     "bob",
		PlanDays:    31,
		AmountCents: 10000,
		Status:      types.OrderStatusCreated,
		StartAt:     now,
		EndAt:       now.Add(31 * 24 * time.Hour),
	}
	insertOrder(t, svc.db, first)
	insertOrder(t, svc.db, second)

	applied, err := svc.MarkPaid(ctx, first.TradeNo, now)
	require.NoError(t, err)
	require.True(t, applied)

	// the slot was taken while the second order sat unpaid
	_, err = svc.MarkPaid(ctx, second.TradeNo, now)
	require.ErrorIs(t, err, ErrLeaseOverlap)

	var stored models.AdOrder
	require.NoError(t, svc.db.First(&stored, "trade_no = ?", second.TradeNo).Error)
	require.Equal(t, types.OrderStatusCreated, stored.Status)

	// replaying the settled callback is a quiet no-op
	applied, err = svc.MarkPaid(ctx, first.TradeNo, now)
	require.NoError(t, err)
	require.False(t, applied)

	var paid int64
	err = svc.db.Model(&models.AdOrder{}).
		Where("slot_id = ? AND status = ?", 3, types.OrderStatusPaid).
		Count(&paid).Error
	require.NoError(t, err)
	require.EqualValues(t, 1, paid)
}

func TestRenewalChainsSeamlessly(t *testing.T) {
	gw := fakeGateway(t)
	svc := newTestService(t, gw.URL)
	ctx := context.Background()
	now := time.Now()

	oldEnd := now.Add(3 * 24 * time.Hour) // inside the 7-day protection window
	incumbent := &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      1,
		BuyerID:     "alice",
		PlanDays:    31,
		AmountCents: 10000,
		Status:      types.OrderStatusPaid,
		StartAt:     now.Add(-28 * 24 * time.Hour),
		EndAt:       oldEnd,
	}
	insertOrder(t, svc.db, incumbent)

	decision, err := svc.Admission(ctx, 1, "alice", now)
	require.NoError(t, err)
	require.Equal(t, types.AdmissionModeRenew, decision.Mode)
	require.NotNil(t, decision.RenewStartAt)
	require.WithinDuration(t, oldEnd, *decision.RenewStartAt, time.Second)

	renewal, err := svc.Purchase(ctx, &PurchaseParams{
		UserID:     "alice",
		SlotID:     1,
		PlanDays:   31,
		ButtonText: "Join Alice",
		ButtonURL:  "https://alice.example/join",
	})
	require.NoError(t, err)
	require.WithinDuration(t, oldEnd, renewal.StartAt, time.Second)
	require.Equal(t, 31*24*time.Hour, renewal.EndAt.Sub(renewal.StartAt))

	// an outsider is blocked; while the renewal is unpaid the quote is still
	// the incumbent boundary
	_, err = svc.Purchase(ctx, &PurchaseParams{
		UserID:     "bob",
		SlotID:     1,
		PlanDays:   31,
		ButtonText: "Join Bob",
		ButtonURL:  "https://bob.example/join",
	})
	require.ErrorIs(t, err, ErrSlotOccupied)

	decision, err = svc.Admission(ctx, 1, "bob", now)
	require.NoError(t, err)
	require.Equal(t, types.AdmissionModeBlocked, decision.Mode)
	require.Equal(t, types.AdmissionReasonOccupied, decision.Reason)
	require.WithinDuration(t, oldEnd, *decision.AvailableAt, time.Second)

	applied, err := svc.MarkPaid(ctx, renewal.TradeNo, now)
	require.NoError(t, err)
	require.True(t, applied)

	// paid renewal moves the quoted boundary to the renewed end
	decision, err = svc.Admission(ctx, 1, "bob", now)
	require.NoError(t, err)
	require.WithinDuration(t, renewal.EndAt, *decision.AvailableAt, time.Second)

	// with pre-renewal quoting outsiders keep seeing the original boundary
	svc.cfg.SlotAds.QuotePostRenewal = false
	decision, err = svc.Admission(ctx, 1, "bob", now)
	require.NoError(t, err)
	require.WithinDuration(t, oldEnd, *decision.AvailableAt, time.Second)
}

func TestRenewClosedOutsideProtectionWindow(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()
	now := time.Now()

	end := now.Add(20 * 24 * time.Hour)
	insertOrder(t, svc.db, &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      2,
		BuyerID:     "alice",
		PlanDays:    31,
		AmountCents: 10000,
		Status:      types.OrderStatusPaid,
		StartAt:     now.Add(-11 * 24 * time.Hour),
		EndAt:       end,
	})

	decision, err := svc.Admission(ctx, 2, "alice", now)
	require.NoError(t, err)
	require.Equal(t, types.AdmissionModeBlocked, decision.Mode)
	require.Equal(t, types.AdmissionReasonRenewClosed, decision.Reason)
	require.WithinDuration(t, end.Add(-7*24*time.Hour), *decision.AvailableAt, time.Second)
}

func TestSetReminderUsesAdvanceDays(t *testing.T) {
	svc := newTestService(t, "")
	ctx := context.Background()
	now := time.Now()

	end := now.Add(10 * 24 * time.Hour)
	order := &models.AdOrder{
		TradeNo:     tool.NewTradeNo("SLT"),
		SlotID:      4,
		BuyerID:     "alice",
		PlanDays:    31,
		AmountCents: 10000,
		Status:      types.OrderStatusPaid,
		StartAt:     now.Add(-21 * 24 * time.Hour),
		EndAt:       end,
	}
	insertOrder(t, svc.db, order)

	updated, err := svc.SetReminder(ctx, order.TradeNo, "alice", true)
	require.NoError(t, err)
	require.True(t, updated.ReminderOptIn)
	require.NotNil(t, updated.RemindAt)
	require.WithinDuration(t, end.Add(-24*time.Hour), *updated.RemindAt, time.Second)

	updated, err = svc.SetReminder(ctx, order.TradeNo, "alice", false)
	require.NoError(t, err)
	require.False(t, updated.ReminderOptIn)
	require.Nil(t, updated.RemindAt)

	_, err = svc.SetReminder(ctx, order.TradeNo, "bob", true)
	require.ErrorIs(t, err, ErrNotOwner)
}
