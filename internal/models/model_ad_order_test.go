package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adboard/adboard/pkg/types"
)

func TestDerivedStatus(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		name  string
		order AdOrder
		want  types.DerivedOrderStatus
	}{
		{
			name:  "created stays created regardless of window",
			order: AdOrder{Status: types.OrderStatusCreated, StartAt: now.Add(-day), EndAt: now.Add(day)},
			want:  types.DerivedStatusCreated,
		},
		{
			name:  "paid before start is pending",
			order: AdOrder{Status: types.OrderStatusPaid, StartAt: now.Add(time.Hour), EndAt: now.Add(31 * day)},
			want:  types.DerivedStatusPending,
		},
		{
			name:  "paid inside window is active",
			order: AdOrder{Status: types.OrderStatusPaid, StartAt: now.Add(-day), EndAt: now.Add(day)},
			want:  types.DerivedStatusActive,
		},
		{
			name:  "paid at end boundary is expired",
			order: AdOrder{Status: types.OrderStatusPaid, StartAt: now.Add(-31 * day), EndAt: now},
			want:  types.DerivedStatusExpired,
		},
		{
			name:  "terminated wins over window",
			order: AdOrder{Status: types.OrderStatusTerminated, StartAt: now.Add(-day), EndAt: now.Add(day)},
			want:  types.DerivedStatusTerminated,
		},
		{
			name:  "canceled wins over window",
			order: AdOrder{Status: types.OrderStatusCanceled, StartAt: now.Add(-day), EndAt: now.Add(day)},
			want:  types.DerivedStatusCanceled,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.order.DerivedStatus(now))
		})
	}
}

func TestOccupiesAt(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	// reserved lease with a future start still occupies
	reserved := AdOrder{Status: types.OrderStatusPaid, StartAt: now.Add(day), EndAt: now.Add(32 * day)}
	require.True(t, reserved.OccupiesAt(now))
	require.False(t, reserved.ActiveAt(now))

	// merely created does not occupy
	pendingPay := AdOrder{Status: types.OrderStatusCreated, StartAt: now.Add(day), EndAt: now.Add(32 * day)}
	require.False(t, pendingPay.OccupiesAt(now))

	// expired lease frees the slot
	expired := AdOrder{Status: types.OrderStatusPaid, StartAt: now.Add(-32 * day), EndAt: now}
	require.False(t, expired.OccupiesAt(now))
}
