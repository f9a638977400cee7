package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/types"
)

func TestRenderText(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, "Board for 2026-03-01", RenderText("Board for {date}", at))
	require.Equal(t, "2026-03-01 09:00", RenderText("{datetime}", at))
	require.Equal(t, "plain", RenderText("plain", at))
}

func TestBuyDeepLink(t *testing.T) {
	require.Equal(t, "https://t.me/adboard_bot?start=buy_slot_3", BuyDeepLink("adboard_bot", 3))
}

func TestControlRows(t *testing.T) {
	slotRows := []*models.Slot{
		{SlotID: 1, PurchaseEnabled: true, DefaultControls: datatypes.NewJSONType([]types.SlotControl{})},
		{SlotID: 2, PurchaseEnabled: true, DefaultControls: datatypes.NewJSONType([]types.SlotControl{
			{Label: "House ad", URL: "https://example.com/house"},
		})},
		{SlotID: 3, PurchaseEnabled: false, DefaultControls: datatypes.NewJSONType([]types.SlotControl{})},
	}
	active := map[int]*models.AdOrder{
		1: {TradeNo: "SLT1", SlotID: 1, CreativeID: "c1"},
	}
	creatives := map[string]*models.Creative{
		"c1": {ID: "c1", ButtonText: "Visit sponsor", ButtonURL: "https://sponsor.example"},
	}
	occupied := map[int]bool{1: true}

	rows := ControlRows(slotRows, active, creatives, occupied, "adboard_bot")
	require.Len(t, rows, 2)

	// slot 1: the paid creative
	require.Equal(t, "Visit sponsor", rows[0][0].Label)

	// slot 2: fallback controls plus the buy button
	require.Len(t, rows[1], 2)
	require.Equal(t, "House ad", rows[1][0].Label)
	require.Equal(t, BuyDeepLink("adboard_bot", 2), rows[1][1].URL)

	// slot 3: closed and empty, no row at all
}

func TestControlRowsReservedSlotHasNoBuyButton(t *testing.T) {
	slotRows := []*models.Slot{
		{SlotID: 1, PurchaseEnabled: true, DefaultControls: datatypes.NewJSONType([]types.SlotControl{
			{Label: "House ad", URL: "https://example.com/house"},
		})},
	}
	// paid order with a future window: not active, still occupying
	rows := ControlRows(slotRows, nil, nil, map[int]bool{1: true}, "adboard_bot")
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 1)
	require.Equal(t, "House ad", rows[0][0].Label)
}
