package dispatcher

import (
	"context"

	"github.com/garyjia/inspector-vouchers/internal/domain/event"
)

// Handler reacts to a committed voucher or assignment change
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	Handler   Handler
}
