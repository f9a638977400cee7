package models

import (
	"time"

	"gorm.io/datatypes"
)

type CallbackLogStatus string

const (
	CallbackLogStatusReceived CallbackLogStatus = "received"
	CallbackLogStatusHandled  CallbackLogStatus = "handled"
	CallbackLogStatusRejected CallbackLogStatus = "rejected"
)

// CallbackLog is the audit record for every settlement callback received,
// including the ones rejected for signature or amount mismatch.
type CallbackLog struct {
	ID             string            `gorm:"column:id;type:uuid;primary_key" json:"id"`
	TradeNo        string            `gorm:"column:trade_no;type:varchar(64);index" json:"trade_no"`
	GatewayTradeID string            `gorm:"column:gateway_trade_id;type:varchar(128)" json:"gateway_trade_id"`
	TraceID        string            `gorm:"column:trace_id;type:varchar(128)" json:"trace_id"`
	Data           datatypes.JSON    `gorm:"column:data;type:jsonb" json:"data"`
	Result         *datatypes.JSON   `gorm:"column:result;type:jsonb" json:"result"`
	Status         CallbackLogStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (CallbackLog) TableName() string { return "settlement_callback_log" }
