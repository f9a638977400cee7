package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/types"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.CreditBalance{},
		&models.LedgerEntry{},
		&models.CreditOrder{},
	))
	return NewService(db, &config.Config{}, nil, zap.NewNop().Sugar())
}

func TestCreditReplayAppliesOnce(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	applied, err := s.Credit(ctx, "u1", 10, "AD123", types.LedgerReasonPurchase)
	require.NoError(t, err)
	require.True(t, applied)

	// duplicate settlement callback
	applied, err = s.Credit(ctx, "u1", 10, "AD123", types.LedgerReasonPurchase)
	require.NoError(t, err)
	require.False(t, applied)

	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 10, balance)

	entries, err := s.Entries(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestConsumeInsufficientIsNormalOutcome(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Consume(ctx, "u1", 1, "", types.LedgerReasonConsume)
	require.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 0, balance)

	// the rolled-back attempt leaves no ledger row behind
	entries, err := s.Entries(ctx, "u1", 10)
	require.NoError(t, err)
	require.Empty(t, entries)

	// partial balance is not enough either
	_, err = s.Credit(ctx, "u1", 2, "AD1", types.LedgerReasonPurchase)
	require.NoError(t, err)
	_, err = s.Consume(ctx, "u1", 3, "", types.LedgerReasonConsume)
	require.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err = s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 2, balance)
}

func TestConsumeRefundRoundTrip(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Credit(ctx, "u1", 5, "AD1", types.LedgerReasonPurchase)
	require.NoError(t, err)

	ref, err := s.Consume(ctx, "u1", 2, "", types.LedgerReasonConsume)
	require.NoError(t, err)
	require.NotEmpty(t, ref)

	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 3, balance)

	applied, err := s.Refund(ctx, "u1", ref)
	require.NoError(t, err)
	require.True(t, applied)

	// retried compensation is a no-op
	applied, err = s.Refund(ctx, "u1", ref)
	require.NoError(t, err)
	require.False(t, applied)

	balance, err = s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 5, balance)

	_, err = s.Refund(ctx, "u1", "CSM-nope")
	require.ErrorIs(t, err, ErrUnknownConsumption)
}

func TestRecomputeRebuildsCache(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Credit(ctx, "u1", 7, "AD1", types.LedgerReasonPurchase)
	require.NoError(t, err)
	_, err = s.Consume(ctx, "u1", 3, "", types.LedgerReasonConsume)
	require.NoError(t, err)

	// poison the cache, then rebuild it from the ledger alone
	err = s.db.Model(&models.CreditBalance{}).
		Where("user_id = ?", "u1").
		Update("balance", 999).Error
	require.NoError(t, err)

	total, err := s.Recompute(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 4, total)

	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 4, balance)
}

func TestSettlePackOrderReplaySafe(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	order := &models.CreditOrder{
		TradeNo:     "AD17000000001A2B3C4D",
		UserID:      "u1",
		SKU:         "p10",
		Credits:     10,
		AmountCents: 5000,
		Currency:    "USDT",
		Status:      types.OrderStatusCreated,
	}
	require.NoError(t, s.db.Create(order).Error)

	require.NoError(t, s.SettlePackOrder(ctx, order.TradeNo, time.Now()))
	require.NoError(t, s.SettlePackOrder(ctx, order.TradeNo, time.Now()))

	balance, err := s.Balance(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 10, balance)

	var stored models.CreditOrder
	require.NoError(t, s.db.First(&stored, "trade_no = ?", order.TradeNo).Error)
	require.Equal(t, types.OrderStatusPaid, stored.Status)
}
