package types

import "time"

type OrderStatus string

const (
	// Stored states. "active" and "expired" are derived from the lease
	// window at read time, never written.
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusTerminated OrderStatus = "terminated"
	OrderStatusCanceled   OrderStatus = "canceled"
)

// DerivedOrderStatus is the effective state of an order at a point in time.
type DerivedOrderStatus string

const (
	DerivedStatusCreated    DerivedOrderStatus = "created"
	DerivedStatusPending    DerivedOrderStatus = "pending"
	DerivedStatusActive     DerivedOrderStatus = "active"
	DerivedStatusExpired    DerivedOrderStatus = "expired"
	DerivedStatusTerminated DerivedOrderStatus = "terminated"
	DerivedStatusCanceled   DerivedOrderStatus = "canceled"
)

type ControlStyle string

const (
	ControlStylePrimary ControlStyle = "primary"
	ControlStyleSuccess ControlStyle = "success"
	ControlStyleDanger  ControlStyle = "danger"
)

// SlotControl is one interactive button attached to an advertising slot row.
type SlotControl struct {
	Label string        `json:"label" mapstructure:"label"`
	URL   string        `json:"url" mapstructure:"url"`
	Style *ControlStyle `json:"style,omitempty" mapstructure:"style"`
}

// LeasePlan is a purchasable lease duration for a slot.
type LeasePlan struct {
	SKU         string `json:"sku" mapstructure:"sku"`
	Days        int    `json:"days" mapstructure:"days"`
	AmountCents int64  `json:"amount_cents" mapstructure:"amount_cents"`
}

// CreditPack is a purchasable bundle of publish credits.
type CreditPack struct {
	SKU         string `json:"sku" mapstructure:"sku"`
	Credits     int64  `json:"credits" mapstructure:"credits"`
	AmountCents int64  `json:"amount_cents" mapstructure:"amount_cents"`
}

type AdmissionMode string

const (
	AdmissionModeBuy     AdmissionMode = "buy"
	AdmissionModeRenew   AdmissionMode = "renew"
	AdmissionModeBlocked AdmissionMode = "blocked"
)

type AdmissionReason string

const (
	AdmissionReasonOccupied     AdmissionReason = "occupied"
	AdmissionReasonRenewClosed  AdmissionReason = "renew_not_open"
	AdmissionReasonSlotDisabled AdmissionReason = "slot_disabled"
)

// AdmissionDecision is the structured outcome of a purchase/renewal admission
// check. Blocked is not an error: AvailableAt tells the caller when the slot
// opens up again.
type AdmissionDecision struct {
	Mode         AdmissionMode   `json:"mode"`
	Reason       AdmissionReason `json:"reason,omitempty"`
	AvailableAt  *time.Time      `json:"available_at,omitempty"`
	RenewStartAt *time.Time      `json:"renew_start_at,omitempty"`
}

// ModerationVerdict is the review result attached to a creative.
type ModerationVerdict struct {
	Passed   bool   `json:"passed"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
