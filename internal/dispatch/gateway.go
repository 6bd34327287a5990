package dispatch

import (
	"context"
	"time"

	"github.com/avitonotify/notify-server-go/internal/model"
)

// DeliveryGateway is the external side-effect boundary. Implementations
// return nil only on confirmed delivery; the coordinator advances row
// state solely on that signal.
type DeliveryGateway interface {
	SendDigest(ctx context.Context, target *model.AccountChatTarget, windowStart, windowEnd time.Time) error
	SendReminder(ctx context.Context, target *model.AccountChatTarget, rem *model.Reminder, now time.Time) error
	SendRealtime(ctx context.Context, target *model.AccountChatTarget, event *model.PendingEvent) error
}
