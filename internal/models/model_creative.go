package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/adboard/adboard/pkg/types"
)

// Creative is immutable once attached to an order. Edits create a new row and
// relink the order, preserving the audit trail.
type Creative struct {
	ID         string                                       `gorm:"column:id;primary_key;type:uuid" json:"id"`
	OwnerID    string                                       `gorm:"column:owner_id;type:varchar(64);not null;index" json:"owner_id"`
	ButtonText string                                       `gorm:"column:button_text;type:varchar(128);not null" json:"button_text"`
	ButtonURL  string                                       `gorm:"column:button_url;type:varchar(512);not null" json:"button_url"`
	Style      *types.ControlStyle                          `gorm:"column:style;type:varchar(16);default:null" json:"style"`
	Verdict    datatypes.JSONType[*types.ModerationVerdict] `gorm:"column:verdict;type:jsonb;default:null" json:"verdict"`
	CreatedAt  time.Time                                    `json:"created_at"`
}

func (Creative) TableName() string { return "ad_creative" }

func (c *Creative) Control() types.SlotControl {
	return types.SlotControl{Label: c.ButtonText, URL: c.ButtonURL, Style: c.Style}
}
