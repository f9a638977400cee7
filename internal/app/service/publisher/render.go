package publisher

import (
	"fmt"
	"strings"
	"time"

	"github.com/adboard/adboard/internal/models"
	"github.com/adboard/adboard/pkg/types"
)

// RenderText fills the {date} and {datetime} placeholders of the message
// template with the firing time.
func RenderText(template string, at time.Time) string {
	text := strings.ReplaceAll(template, "{date}", at.Format("2006-01-02"))
	text = strings.ReplaceAll(text, "{datetime}", at.Format("2006-01-02 15:04"))
	return text
}

// BuyDeepLink is the purchase intent URL attached to an unsold slot's button.
func BuyDeepLink(botUsername string, slotID int) string {
	return fmt.Sprintf("https://t.me/%s?start=buy_slot_%d", botUsername, slotID)
}

// ControlRows renders one button row per slot. A slot showing a paid ad gets
// the buyer's creative; otherwise the admin fallback controls, with a buy
// button appended while the slot is open for purchase.
func ControlRows(
	slotRows []*models.Slot,
	active map[int]*models.AdOrder,
	creatives map[string]*models.Creative,
	occupied map[int]bool,
	botUsername string,
) [][]types.SlotControl {
	rows := make([][]types.SlotControl, 0, len(slotRows))
	for _, slot := range slotRows {
		if order, ok := active[slot.SlotID]; ok {
			if creative, ok := creatives[order.CreativeID]; ok {
				rows = append(rows, []types.SlotControl{creative.Control()})
				continue
			}
		}

		row := append([]types.SlotControl{}, slot.DefaultControls.Data()...)
		if slot.PurchaseEnabled && !occupied[slot.SlotID] {
			row = append(row, types.SlotControl{
				Label: fmt.Sprintf("Slot %d — available", slot.SlotID),
				URL:   BuyDeepLink(botUsername, slot.SlotID),
			})
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}
