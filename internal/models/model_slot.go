package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/adboard/adboard/pkg/types"
)

// Slot is one of the fixed advertising positions. Rows are created at
// bootstrap and never deleted; admins configure fallback controls shown
// while no paid order occupies the slot.
type Slot struct {
	SlotID          int                                     `gorm:"column:slot_id;primary_key" json:"slot_id"`
	DefaultControls datatypes.JSONType[[]types.SlotControl] `gorm:"column:default_controls;type:jsonb;default:'[]'" json:"default_controls"`
	PurchaseEnabled bool                                    `gorm:"column:purchase_enabled;not null;default:false" json:"purchase_enabled"`
	CreatedAt       time.Time                               `json:"created_at"`
	UpdatedAt       time.Time                               `json:"updated_at"`
}

func (Slot) TableName() string { return "ad_slot" }
