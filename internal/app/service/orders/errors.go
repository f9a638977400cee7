package orders

import (
	"errors"
	"fmt"

	"github.com/adboard/adboard/pkg/types"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrNotOwner       = errors.New("order belongs to another user")
	ErrUnknownPlan    = errors.New("unknown lease plan")
	ErrSlotDisabled   = errors.New("slot is closed for purchase")
	ErrSlotOccupied   = errors.New("slot is occupied")
	ErrRenewNotOpen   = errors.New("renewal window is not open yet")
	ErrOrderNotActive = errors.New("order is not active")
	ErrEditLimit      = errors.New("daily edit limit reached")
	ErrLeaseOverlap   = errors.New("lease window overlaps a paid order")
)

// ModerationError carries the verdict so callers can surface the category to
// the buyer.
type ModerationError struct {
	Verdict *types.ModerationVerdict
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("creative rejected: %s (%s)", e.Verdict.Reason, e.Verdict.Category)
}
