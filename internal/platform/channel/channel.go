package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/adboard/adboard/pkg/types"
)

// MessageRef identifies one delivered channel message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

func (r MessageRef) String() string { return fmt.Sprintf("%d:%d", r.ChatID, r.MessageID) }

var (
	// ErrNotFound: the target message no longer exists.
	ErrNotFound = errors.New("channel: message not found")
	// ErrTooOld: the target message aged out of editability. Callers treat
	// this as benign; the change lands with the next scheduled firing.
	ErrTooOld = errors.New("channel: message too old to edit")
)

// Deliverer is the delivery-channel boundary. Implementations send a text
// message with interactive control rows and patch the controls of an already
// delivered message in place.
type Deliverer interface {
	Deliver(ctx context.Context, text string, controls [][]types.SlotControl) (MessageRef, error)
	PatchControls(ctx context.Context, ref MessageRef, controls [][]types.SlotControl) error
	Pin(ctx context.Context, ref MessageRef) error
	Delete(ctx context.Context, ref MessageRef) error
	// Notify sends a direct message to a single user (expiry reminders).
	Notify(ctx context.Context, userID string, text string, controls [][]types.SlotControl) error
}
