package models

import "time"

type EditorType string

const (
	EditorTypeUser  EditorType = "user"
	EditorTypeAdmin EditorType = "admin"
)

// OrderEdit is one audited creative swap on an order. DayKey (YYYYMMDD) backs
// the per-order per-day edit rate limit.
type OrderEdit struct {
	ID            int64      `gorm:"column:id;primary_key;autoIncrement" json:"id"`
	TradeNo       string     `gorm:"column:trade_no;type:varchar(64);not null;index:idx_order_edit_day,priority:1" json:"trade_no"`
	DayKey        string     `gorm:"column:day_key;type:varchar(8);not null;index:idx_order_edit_day,priority:2" json:"day_key"`
	EditorType    EditorType `gorm:"column:editor_type;type:varchar(16);not null" json:"editor_type"`
	EditorID      *string    `gorm:"column:editor_id;type:varchar(64);default:null" json:"editor_id"`
	OldCreativeID string     `gorm:"column:old_creative_id;type:uuid;not null" json:"old_creative_id"`
	NewCreativeID string     `gorm:"column:new_creative_id;type:uuid;not null" json:"new_creative_id"`
	Note          *string    `gorm:"column:note;type:varchar(200);default:null" json:"note"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (OrderEdit) TableName() string { return "slot_ad_order_edit" }

// DayKeyFor formats the rate-limit bucket for a timestamp.
func DayKeyFor(t time.Time) string { return t.Format("20060102") }
