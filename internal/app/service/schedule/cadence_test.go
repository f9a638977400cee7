package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/types"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func TestComputeNextDailyAt(t *testing.T) {
	params := types.CadenceParams{Time: "09:00"}

	// before today's fire time -> today
	now := mustTime(t, "2026-03-01T08:30:00Z")
	next, err := ComputeNext(types.CadenceDailyAt, params, now, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-01T09:00:00Z"), next)

	// exactly at the fire time -> tomorrow (strictly after)
	now = mustTime(t, "2026-03-01T09:00:00Z")
	next, err = ComputeNext(types.CadenceDailyAt, params, now, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-02T09:00:00Z"), next)
}

func TestComputeNextCollapsesMissedFirings(t *testing.T) {
	params := types.CadenceParams{Time: "09:00"}

	// last planned firing three days ago, process was down since
	after := mustTime(t, "2026-03-01T09:00:00Z")
	now := mustTime(t, "2026-03-04T10:00:00Z")
	next, err := ComputeNext(types.CadenceDailyAt, params, after, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-05T09:00:00Z"), next)
}

func TestComputeNextEveryNHours(t *testing.T) {
	params := types.CadenceParams{Hours: 6}

	after := mustTime(t, "2026-03-01T06:00:00Z")
	now := mustTime(t, "2026-03-01T06:00:00Z")
	next, err := ComputeNext(types.CadenceEveryNHours, params, after, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-01T12:00:00Z"), next)

	// two intervals elapsed while down -> single catch-up occurrence
	now = mustTime(t, "2026-03-01T19:00:00Z")
	next, err = ComputeNext(types.CadenceEveryNHours, params, after, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-02T00:00:00Z"), next)
}

func TestValidateCadence(t *testing.T) {
	require.NoError(t, ValidateCadence(types.CadenceDailyAt, types.CadenceParams{Time: "23:59"}))
	require.Error(t, ValidateCadence(types.CadenceDailyAt, types.CadenceParams{Time: "24:00"}))
	require.Error(t, ValidateCadence(types.CadenceDailyAt, types.CadenceParams{Time: "nine"}))
	require.NoError(t, ValidateCadence(types.CadenceEveryNHours, types.CadenceParams{Hours: 6}))
	require.Error(t, ValidateCadence(types.CadenceEveryNHours, types.CadenceParams{Hours: 0}))
	require.Error(t, ValidateCadence(types.CadenceKind("fortnightly"), types.CadenceParams{}))
}

func freezeTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.SlotAds.FreezeWindowSec = 300
	return &Service{cfg: cfg}
}

func scheduleRow(t *testing.T, enabled bool, nextFire string) *models.ScheduleConfig {
	t.Helper()
	row := &models.ScheduleConfig{
		ID:            models.ScheduleConfigID,
		Enabled:       enabled,
		CadenceKind:   types.CadenceDailyAt,
		CadenceParams: datatypes.NewJSONType(types.CadenceParams{Time: "09:00"}),
	}
	if nextFire != "" {
		ts := mustTime(t, nextFire)
		row.NextFireAt = &ts
	}
	return row
}

func TestPlannedStartBeforeFreezeWindow(t *testing.T) {
	s := freezeTestService(t)
	row := scheduleRow(t, true, "2026-03-01T09:00:00Z")

	now := mustTime(t, "2026-03-01T08:54:59Z")
	start, err := s.plannedStart(row, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-01T09:00:00Z"), start)
}

func TestPlannedStartInsideFreezeWindowDefers(t *testing.T) {
	s := freezeTestService(t)
	row := scheduleRow(t, true, "2026-03-01T09:00:00Z")

	// 08:58 is within five minutes of the firing: the lease is quoted
	// against the next day's firing instead.
	now := mustTime(t, "2026-03-01T08:58:00Z")
	start, err := s.plannedStart(row, now)
	require.NoError(t, err)
	require.Equal(t, mustTime(t, "2026-03-02T09:00:00Z"), start)
}

func TestPlannedStartDisabledScheduleStartsNow(t *testing.T) {
	s := freezeTestService(t)
	row := scheduleRow(t, false, "")

	now := mustTime(t, "2026-03-01T12:00:00Z")
	start, err := s.plannedStart(row, now)
	require.NoError(t, err)
	require.Equal(t, now, start)
}
