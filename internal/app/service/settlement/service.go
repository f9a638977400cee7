package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/adboard/adboard/internal/app/service/ledger"
	"github.com/adboard/adboard/internal/app/service/orders"
	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/internal/platform/upay"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/tool"
	"github.com/adboard/adboard/pkg/types"
)

var (
	ErrBadSignature   = errors.New("callback signature mismatch")
	ErrAmountMismatch = errors.New("callback amount mismatch")
	ErrUnknownOrder   = errors.New("callback references an unknown order")
)

// Outcome summarizes what a callback or status poll did.
type Outcome struct {
	TradeNo string `json:"trade_no"`
	Applied bool   `json:"applied"`
	Note    string `json:"note,omitempty"`
}

// Service converges settlement signals (push callbacks and pull status
// checks) onto the order services. Every received callback is persisted to
// the audit log whatever its fate.
type Service struct {
	db     *gorm.DB
	cfg    *config.Config
	orders *orders.Service
	ledger *ledger.Service
	upay   *upay.Client
	log    *zap.SugaredLogger
}

func NewService(
	db *gorm.DB,
	cfg *config.Config,
	orderSvc *orders.Service,
	ledgerSvc *ledger.Service,
	upayClient *upay.Client,
	log *zap.SugaredLogger,
) *Service {
	return &Service{db: db, cfg: cfg, orders: orderSvc, ledger: ledgerSvc, upay: upayClient, log: log}
}

// HandleCallback verifies and applies one gateway notification. Rejections
// are returned as errors so the transport layer can answer non-200 and make
// the gateway retry; replays of an already settled order succeed quietly.
func (s *Service) HandleCallback(ctx context.Context, raw []byte) (*Outcome, error) {
	cb, err := upay.ParseCallback(raw)
	if err != nil {
		s.audit(ctx, "", "", raw, models.CallbackLogStatusRejected, map[string]any{"error": err.Error()})
		return nil, err
	}

	logEntry := func(status models.CallbackLogStatus, result map[string]any) {
		s.audit(ctx, cb.OrderID, cb.TradeID, raw, status, result)
	}

	if !cb.Verify(s.cfg.Upay.SecretKey) {
		logEntry(models.CallbackLogStatusRejected, map[string]any{"error": "signature mismatch"})
		return nil, ErrBadSignature
	}

	if cb.Status != upay.StatusPaid {
		// non-final status, acknowledged without side effects
		logEntry(models.CallbackLogStatusHandled, map[string]any{"note": "ignored non-paid status", "status": cb.Status})
		return &Outcome{TradeNo: cb.OrderID, Applied: false, Note: "non-paid status ignored"}, nil
	}

	outcome, err := s.settle(ctx, cb.OrderID, cb.AmountCents, time.Now())
	if err != nil {
		logEntry(models.CallbackLogStatusRejected, map[string]any{"error": err.Error()})
		return nil, err
	}
	logEntry(models.CallbackLogStatusHandled, map[string]any{"applied": outcome.Applied})
	return outcome, nil
}

// ConfirmByQuery is the pull fallback for callbacks that never arrived: ask
// the gateway for the order's status and settle when it reports paid. The
// amount check reuses the locally stored amount, so a poisoned response
// cannot settle a mismatched order.
func (s *Service) ConfirmByQuery(ctx context.Context, tradeNo string) (*Outcome, error) {
	gatewayTradeID, err := s.gatewayTradeID(ctx, tradeNo)
	if err != nil {
		return nil, err
	}
	res, err := s.upay.CheckStatus(ctx, gatewayTradeID)
	if err != nil {
		return nil, err
	}
	if res.Status != upay.StatusPaid {
		return &Outcome{TradeNo: tradeNo, Applied: false, Note: fmt.Sprintf("gateway status %d", res.Status)}, nil
	}
	return s.settle(ctx, tradeNo, -1, time.Now())
}

// settle routes by trade number prefix: SLT orders activate a slot lease, AD
// orders credit the buyer's ledger. amountCents < 0 skips the amount check
// (status-poll path, where the gateway reports no amount).
func (s *Service) settle(ctx context.Context, tradeNo string, amountCents int64, paidAt time.Time) (*Outcome, error) {
	switch {
	case strings.HasPrefix(tradeNo, "SLT"):
		order, err := s.orders.Get(ctx, tradeNo)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				return nil, ErrUnknownOrder
			}
			return nil, err
		}
		if amountCents >= 0 && amountCents != order.AmountCents {
			return nil, ErrAmountMismatch
		}
		applied, err := s.orders.MarkPaid(ctx, tradeNo, paidAt)
		if err != nil {
			return nil, err
		}
		return &Outcome{TradeNo: tradeNo, Applied: applied}, nil

	case strings.HasPrefix(tradeNo, "AD"):
		var pack models.CreditOrder
		err := s.db.WithContext(ctx).First(&pack, "trade_no = ?", tradeNo).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownOrder
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load credit order: %w", err)
		}
		if amountCents >= 0 && amountCents != pack.AmountCents {
			return nil, ErrAmountMismatch
		}
		alreadyPaid := pack.Status != types.OrderStatusCreated
		if err := s.ledger.SettlePackOrder(ctx, tradeNo, paidAt); err != nil {
			return nil, err
		}
		return &Outcome{TradeNo: tradeNo, Applied: !alreadyPaid}, nil
	}
	return nil, ErrUnknownOrder
}

func (s *Service) gatewayTradeID(ctx context.Context, tradeNo string) (string, error) {
	if strings.HasPrefix(tradeNo, "AD") {
		var pack models.CreditOrder
		if err := s.db.WithContext(ctx).First(&pack, "trade_no = ?", tradeNo).Error; err != nil {
			return "", ErrUnknownOrder
		}
		if pack.GatewayTradeID == nil {
			return "", fmt.Errorf("order %s has no gateway trade id", tradeNo)
		}
		return *pack.GatewayTradeID, nil
	}
	order, err := s.orders.Get(ctx, tradeNo)
	if err != nil {
		return "", err
	}
	if order.GatewayTradeID == nil {
		return "", fmt.Errorf("order %s has no gateway trade id", tradeNo)
	}
	return *order.GatewayTradeID, nil
}

func (s *Service) audit(ctx context.Context, tradeNo, gatewayTradeID string, raw []byte, status models.CallbackLogStatus, result map[string]any) {
	traceID, _ := ctx.Value("traceID").(string)
	row := &models.CallbackLog{
		ID:             tool.GenerateUUIDV7(),
		TradeNo:        tradeNo,
		GatewayTradeID: gatewayTradeID,
		TraceID:        traceID,
		Data:           datatypes.JSON(raw),
		Status:         status,
	}
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			j := datatypes.JSON(b)
			row.Result = &j
		}
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// the audit row must never block settlement
		logctx.FromCtx(ctx, s.log).Errorw("callback_audit_write_failed", "trade_no", tradeNo, "err", err)
	}
}
