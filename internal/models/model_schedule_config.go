package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/adboard/adboard/pkg/types"
)

// ScheduleConfig is the single hot-reloadable scheduling row (id=1).
// NextFireAt is only advanced by the firing transaction itself; readers never
// touch it. Version guards concurrent admin edits.
type ScheduleConfig struct {
	ID            int                                     `gorm:"column:id;primary_key" json:"id"`
	Enabled       bool                                    `gorm:"column:enabled;not null;default:false" json:"enabled"`
	CadenceKind   types.CadenceKind                       `gorm:"column:cadence_kind;type:varchar(32);not null;default:'daily_at'" json:"cadence_kind"`
	CadenceParams datatypes.JSONType[types.CadenceParams] `gorm:"column:cadence_params;type:jsonb;default:'{}'" json:"cadence_params"`
	// MessageTemplate supports {date} and {datetime} placeholders.
	MessageTemplate string `gorm:"column:message_template;type:text;not null;default:''" json:"message_template"`
	AutoPin         bool   `gorm:"column:auto_pin;not null;default:false" json:"auto_pin"`
	DeletePrevious  bool   `gorm:"column:delete_previous;not null;default:false" json:"delete_previous"`

	NextFireAt *time.Time `gorm:"column:next_fire_at;default:null" json:"next_fire_at"`
	LastFireAt *time.Time `gorm:"column:last_fire_at;default:null" json:"last_fire_at"`
	// LastMessageRef identifies the most recent delivered scheduled message,
	// the target of in-place control patches.
	LastMessageChatID *int64 `gorm:"column:last_message_chat_id;default:null" json:"last_message_chat_id"`
	LastMessageID     *int64 `gorm:"column:last_message_id;default:null" json:"last_message_id"`

	Version   int64     `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ScheduleConfig) TableName() string { return "schedule_config" }

// ScheduleConfigID is the fixed primary key of the singleton row.
const ScheduleConfigID = 1
