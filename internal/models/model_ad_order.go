package models

import (
	"time"

	"github.com/adboard/adboard/pkg/types"
)

// AdOrder is one lease of a slot. Stored status only records the external
// transitions (payment, termination, cancelation); active/expired are pure
// functions of the lease window, evaluated at read time.
type AdOrder struct {
	TradeNo     string            `gorm:"column:trade_no;primary_key;type:varchar(64)" json:"trade_no"`
	SlotID      int               `gorm:"column:slot_id;not null;index:idx_ad_order_slot_status,priority:1" json:"slot_id"`
	BuyerID     string            `gorm:"column:buyer_id;type:varchar(64);not null;index" json:"buyer_id"`
	CreativeID  string            `gorm:"column:creative_id;type:uuid;not null" json:"creative_id"`
	PlanDays    int               `gorm:"column:plan_days;not null" json:"plan_days"`
	AmountCents int64             `gorm:"column:amount_cents;not null" json:"amount_cents"`
	Currency    string            `gorm:"column:currency;type:varchar(16);not null" json:"currency"`
	Status      types.OrderStatus `gorm:"column:status;type:varchar(16);not null;index:idx_ad_order_slot_status,priority:2" json:"status"`

	GatewayTradeID *string `gorm:"column:gateway_trade_id;type:varchar(128);default:null" json:"gateway_trade_id"`
	PaymentURL     *string `gorm:"column:payment_url;type:varchar(512);default:null" json:"payment_url"`
	// ExpiresAt is the payment deadline for a created order, not the lease end.
	ExpiresAt *time.Time `gorm:"column:expires_at;default:null" json:"expires_at"`

	StartAt time.Time  `gorm:"column:start_at;not null" json:"start_at"`
	EndAt   time.Time  `gorm:"column:end_at;not null" json:"end_at"`
	PaidAt  *time.Time `gorm:"column:paid_at;default:null" json:"paid_at"`

	TerminatedAt    *time.Time `gorm:"column:terminated_at;default:null" json:"terminated_at"`
	TerminateReason *string    `gorm:"column:terminate_reason;type:varchar(200);default:null" json:"terminate_reason"`

	ReminderOptIn bool       `gorm:"column:reminder_opt_in;not null;default:false" json:"reminder_opt_in"`
	RemindAt      *time.Time `gorm:"column:remind_at;default:null" json:"remind_at"`
	RemindSent    bool       `gorm:"column:remind_sent;not null;default:false" json:"remind_sent"`
	RemindSentAt  *time.Time `gorm:"column:remind_sent_at;default:null" json:"remind_sent_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AdOrder) TableName() string { return "slot_ad_order" }

// DerivedStatus evaluates the effective state at now.
func (o *AdOrder) DerivedStatus(now time.Time) types.DerivedOrderStatus {
	switch o.Status {
	case types.OrderStatusTerminated:
		return types.DerivedStatusTerminated
	case types.OrderStatusCanceled:
		return types.DerivedStatusCanceled
	case types.OrderStatusCreated:
		return types.DerivedStatusCreated
	}
	// paid
	if !now.Before(o.EndAt) {
		return types.DerivedStatusExpired
	}
	if now.Before(o.StartAt) {
		return types.DerivedStatusPending
	}
	return types.DerivedStatusActive
}

// ActiveAt reports whether the ad is showing at now.
func (o *AdOrder) ActiveAt(now time.Time) bool {
	return o.DerivedStatus(now) == types.DerivedStatusActive
}

// OccupiesAt reports whether the order blocks the slot from resale at now.
// A paid order with a future start still occupies: its window begins at the
// next scheduled firing.
func (o *AdOrder) OccupiesAt(now time.Time) bool {
	return o.Status == types.OrderStatusPaid && o.EndAt.After(now)
}
