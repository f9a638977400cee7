package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/types"
)

// Service owns the singleton schedule config row: hot reloads from admins,
// the claim-and-advance step that serializes firings, and the planned start
// time quoted to buyers.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// EnsureConfig creates the singleton row when missing. Safe to run on every
// start.
func (s *Service) EnsureConfig(ctx context.Context) error {
	row := &models.ScheduleConfig{
		ID:          models.ScheduleConfigID,
		Enabled:     false,
		CadenceKind: types.CadenceDailyAt,
		CadenceParams: datatypes.NewJSONType(types.CadenceParams{
			Time: "09:00",
		}),
		MessageTemplate: "{date}",
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to ensure schedule config: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context) (*models.ScheduleConfig, error) {
	var row models.ScheduleConfig
	if err := s.db.WithContext(ctx).First(&row, models.ScheduleConfigID).Error; err != nil {
		return nil, fmt.Errorf("failed to load schedule config: %w", err)
	}
	return &row, nil
}

// UpdateParams is a partial update; nil fields keep their stored value.
type UpdateParams struct {
	Enabled         *bool
	CadenceKind     *types.CadenceKind
	CadenceParams   *types.CadenceParams
	MessageTemplate *string
	AutoPin         *bool
	DeletePrevious  *bool
}

// Update applies an admin edit and recomputes the next fire time whenever the
// cadence or enablement changed. The whole edit is one transaction so a
// concurrent firing either sees the old config or the new one, never a blend.
func (s *Service) Update(ctx context.Context, params *UpdateParams) (*models.ScheduleConfig, error) {
	var updated *models.ScheduleConfig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.ScheduleConfig
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&row, models.ScheduleConfigID).Error; err != nil {
			return fmt.Errorf("failed to load schedule config: %w", err)
		}

		cadenceChanged := false
		if params.CadenceKind != nil && *params.CadenceKind != row.CadenceKind {
			row.CadenceKind = *params.CadenceKind
			cadenceChanged = true
		}
		if params.CadenceParams != nil {
			row.CadenceParams = datatypes.NewJSONType(*params.CadenceParams)
			cadenceChanged = true
		}
		if err := ValidateCadence(row.CadenceKind, row.CadenceParams.Data()); err != nil {
			return err
		}
		if params.MessageTemplate != nil {
			row.MessageTemplate = *params.MessageTemplate
		}
		if params.AutoPin != nil {
			row.AutoPin = *params.AutoPin
		}
		if params.DeletePrevious != nil {
			row.DeletePrevious = *params.DeletePrevious
		}
		if params.Enabled != nil && *params.Enabled != row.Enabled {
			row.Enabled = *params.Enabled
			cadenceChanged = true
		}

		if cadenceChanged {
			if row.Enabled {
				now := time.Now()
				next, err := ComputeNext(row.CadenceKind, row.CadenceParams.Data(), now, now)
				if err != nil {
					return err
				}
				row.NextFireAt = &next
			} else {
				row.NextFireAt = nil
			}
		}
		row.Version++

		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("failed to save schedule config: %w", err)
		}
		updated = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	logctx.FromCtx(ctx, s.log).Infow("schedule_config_updated",
		"enabled", updated.Enabled,
		"cadence", updated.CadenceKind,
		"next_fire_at", updated.NextFireAt,
		"version", updated.Version,
	)
	return updated, nil
}

// ClaimFiring attempts to claim a due firing at now. The conditional update
// on next_fire_at is the serialization point: of N racing processes exactly
// one sees RowsAffected==1 and proceeds to deliver. The claimed snapshot is
// returned so delivery renders against the config that was live at claim
// time.
func (s *Service) ClaimFiring(ctx context.Context, now time.Time) (*models.ScheduleConfig, bool, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return nil, false, err
	}
	if !row.Enabled || row.NextFireAt == nil || row.NextFireAt.After(now) {
		return nil, false, nil
	}
	claimed := *row.NextFireAt

	next, err := ComputeNext(row.CadenceKind, row.CadenceParams.Data(), claimed, now)
	if err != nil {
		return nil, false, err
	}

	res := s.db.WithContext(ctx).Model(&models.ScheduleConfig{}).
		Where("id = ? AND next_fire_at = ?", models.ScheduleConfigID, claimed).
		Updates(map[string]any{
			"next_fire_at": next,
			"last_fire_at": claimed,
		})
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to claim firing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// lost the race, or an admin moved the schedule under us
		return nil, false, nil
	}

	snapshot := *row
	snapshot.LastFireAt = &claimed
	snapshot.NextFireAt = &next
	return &snapshot, true, nil
}

// SetLastMessage records the delivered message so later control patches and
// delete-previous know their target.
func (s *Service) SetLastMessage(ctx context.Context, chatID, messageID int64) error {
	err := s.db.WithContext(ctx).Model(&models.ScheduleConfig{}).
		Where("id = ?", models.ScheduleConfigID).
		Updates(map[string]any{
			"last_message_chat_id": chatID,
			"last_message_id":      messageID,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record last message: %w", err)
	}
	return nil
}

// NextPlannedStart is the lease start quoted to a buyer at now: the upcoming
// firing, or the one after it when now falls inside the pre-fire freeze
// window. With the schedule disabled the lease starts immediately.
func (s *Service) NextPlannedStart(ctx context.Context, now time.Time) (time.Time, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return s.plannedStart(row, now)
}

func (s *Service) plannedStart(row *models.ScheduleConfig, now time.Time) (time.Time, error) {
	if !row.Enabled || row.NextFireAt == nil {
		return now, nil
	}
	next := *row.NextFireAt
	if now.Before(next.Add(-s.cfg.FreezeWindow())) {
		return next, nil
	}
	after, err := ComputeNext(row.CadenceKind, row.CadenceParams.Data(), next, now)
	if err != nil {
		return time.Time{}, err
	}
	return after, nil
}
