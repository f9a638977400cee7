package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "schedule.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.ScheduleConfig{}))

	cfg := &config.Config{
		SlotAds: config.SlotAdsConfig{FreezeWindowSec: 300},
	}
	s := NewService(db, cfg, zap.NewNop().Sugar())
	require.NoError(t, s.EnsureConfig(context.Background()))
	return s
}

func makeDue(t *testing.T, s *Service, fireAt time.Time) {
	t.Helper()
	err := s.db.Model(&models.ScheduleConfig{}).
		Where("id = ?", models.ScheduleConfigID).
		Updates(map[string]any{
			"enabled":      true,
			"next_fire_at": fireAt,
		}).Error
	require.NoError(t, err)
}

func TestClaimFiringClaimsDueTickOnce(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Now()
	due := now.Add(-time.Minute)
	makeDue(t, s, due)

	snapshot, claimed, err := s.ClaimFiring(ctx, now)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NotNil(t, snapshot.LastFireAt)
	require.WithinDuration(t, due, *snapshot.LastFireAt, time.Second)
	require.NotNil(t, snapshot.NextFireAt)
	require.True(t, snapshot.NextFireAt.After(now))

	// the same due tick cannot be claimed twice
	_, claimed, err = s.ClaimFiring(ctx, now)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestClaimFiringSkipsDisabledAndFuture(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// disabled config never fires
	_, claimed, err := s.ClaimFiring(ctx, now)
	require.NoError(t, err)
	require.False(t, claimed)

	// not due yet
	makeDue(t, s, now.Add(time.Hour))
	_, claimed, err = s.ClaimFiring(ctx, now)
	require.NoError(t, err)
	require.False(t, claimed)
}

func TestClaimFiringLosesMovedSchedule(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Now()
	makeDue(t, s, now.Add(-time.Minute))

	// another process claimed the firing between our read and the update;
	// emulate it by moving next_fire_at under a due claim attempt
	row, err := s.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, row.NextFireAt)
	makeDue(t, s, now.Add(30*time.Minute))

	res := s.db.Model(&models.ScheduleConfig{}).
		Where("id = ? AND next_fire_at = ?", models.ScheduleConfigID, *row.NextFireAt).
		Updates(map[string]any{"last_fire_at": *row.NextFireAt})
	require.NoError(t, res.Error)
	require.EqualValues(t, 0, res.RowsAffected)
}
