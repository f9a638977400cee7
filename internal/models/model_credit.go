package models

import (
	"time"

	"github.com/adboard/adboard/pkg/types"
)

// CreditBalance is a derived cache of the signed ledger sum for a user.
// It is only mutated inside ledger-writing transactions.
type CreditBalance struct {
	UserID    string    `gorm:"column:user_id;primary_key;type:varchar(64)" json:"user_id"`
	Balance   int64     `gorm:"column:balance;not null;default:0" json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CreditBalance) TableName() string { return "credit_balance" }

// LedgerEntry is append-only. ExternalRef uniqueness is the sole idempotency
// guard: replaying a settlement callback or retrying a consumption is a no-op
// once the reference is ledgered.
type LedgerEntry struct {
	ID          int64              `gorm:"column:id;primary_key;autoIncrement" json:"id"`
	ExternalRef string             `gorm:"column:external_ref;type:varchar(128);not null;uniqueIndex" json:"external_ref"`
	UserID      string             `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	Delta       int64              `gorm:"column:delta;not null" json:"delta"`
	Reason      types.LedgerReason `gorm:"column:reason;type:varchar(16);not null" json:"reason"`
	CreatedAt   time.Time          `json:"created_at"`
}

func (LedgerEntry) TableName() string { return "credit_ledger" }

// CreditOrder is a gateway purchase of a credit pack.
type CreditOrder struct {
	TradeNo     string            `gorm:"column:trade_no;primary_key;type:varchar(64)" json:"trade_no"`
	UserID      string            `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	SKU         string            `gorm:"column:sku;type:varchar(32);not null" json:"sku"`
	Credits     int64             `gorm:"column:credits;not null" json:"credits"`
	AmountCents int64             `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency    string            `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Status      types.OrderStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`

	GatewayTradeID *string    `gorm:"column:gateway_trade_id;type:varchar(128);default:null" json:"gateway_trade_id"`
	PaymentURL     *string    `gorm:"column:payment_url;type:varchar(512);default:null" json:"payment_url"`
	ExpiresAt      *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`
	PaidAt         *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CreditOrder) TableName() string { return "credit_order" }
