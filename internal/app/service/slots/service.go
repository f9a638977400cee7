package slots

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/logctx"
	"github.com/adboard/adboard/pkg/types"
)

// Service manages the fixed set of advertising slots and their fallback
// controls.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
	log *zap.SugaredLogger
}

func NewService(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Service {
	return &Service{db: db, cfg: cfg, log: log}
}

// EnsureSlots creates slot rows 1..slot_count at bootstrap. Existing rows are
// untouched; shrinking the count never deletes rows.
func (s *Service) EnsureSlots(ctx context.Context) error {
	rows := make([]*models.Slot, 0, s.cfg.SlotAds.SlotCount)
	for i := 1; i <= s.cfg.SlotAds.SlotCount; i++ {
		rows = append(rows, &models.Slot{
			SlotID:          i,
			DefaultControls: datatypes.NewJSONType([]types.SlotControl{}),
			PurchaseEnabled: true,
		})
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rows).Error
	if err != nil {
		return fmt.Errorf("failed to ensure slots: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, slotID int) (*models.Slot, error) {
	var row models.Slot
	if err := s.db.WithContext(ctx).First(&row, slotID).Error; err != nil {
		return nil, fmt.Errorf("failed to load slot %d: %w", slotID, err)
	}
	return &row, nil
}

func (s *Service) GetAll(ctx context.Context) ([]*models.Slot, error) {
	var rows []*models.Slot
	if err := s.db.WithContext(ctx).Order("slot_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}
	return rows, nil
}

// SetDefaultControls replaces the fallback buttons shown while a slot is
// unsold.
func (s *Service) SetDefaultControls(ctx context.Context, slotID int, controls []types.SlotControl) error {
	for i := range controls {
		if err := ValidateControl(&controls[i], s.cfg); err != nil {
			return err
		}
	}
	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("slot_id = ?", slotID).
		Update("default_controls", datatypes.NewJSONType(controls))
	if res.Error != nil {
		return fmt.Errorf("failed to update slot %d controls: %w", slotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	logctx.FromCtx(ctx, s.log).Infow("slot_default_controls_updated", "slot_id", slotID, "count", len(controls))
	return nil
}

// SetPurchaseEnabled opens or closes a slot for new purchases. Existing paid
// leases are unaffected.
func (s *Service) SetPurchaseEnabled(ctx context.Context, slotID int, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("slot_id = ?", slotID).
		Update("purchase_enabled", enabled)
	if res.Error != nil {
		return fmt.Errorf("failed to update slot %d purchase flag: %w", slotID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	logctx.FromCtx(ctx, s.log).Infow("slot_purchase_flag_updated", "slot_id", slotID, "enabled", enabled)
	return nil
}
