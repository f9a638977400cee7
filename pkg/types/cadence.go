package types

type CadenceKind string

const (
	CadenceDailyAt     CadenceKind = "daily_at"
	CadenceEveryNHours CadenceKind = "every_n_hours"
	// Reserved kinds. Accepted by config validation once a policy is
	// registered; the tick contract does not change.
	CadenceWeekly  CadenceKind = "weekly"
	CadenceMonthly CadenceKind = "monthly"
)

// CadenceParams carries the parameters of whichever cadence kind is active.
// Unused fields stay zero.
type CadenceParams struct {
	// Time is the HH:MM fire time for daily_at (and reserved weekly/monthly).
	Time string `json:"time,omitempty"`
	// Hours is the interval for every_n_hours.
	Hours int `json:"hours,omitempty"`
	// Weekday 0..6 (Sunday=0), reserved for weekly.
	Weekday int `json:"weekday,omitempty"`
	// MonthDay 1..28, reserved for monthly.
	MonthDay int `json:"month_day,omitempty"`
}

type LedgerReason string

const (
	LedgerReasonPurchase LedgerReason = "purchase"
	LedgerReasonConsume  LedgerReason = "consume"
	LedgerReasonRefund   LedgerReason = "refund"
)
