package audit

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventDigestSent         EventType = "digest_sent"
	EventReminderSent       EventType = "reminder_sent"
	EventRealtimeSent       EventType = "realtime_sent"
	EventRealtimeSuppressed EventType = "realtime_suppressed"
	EventClaimLost          EventType = "claim_lost"
	EventReminderOpened     EventType = "reminder_opened"
	EventReminderResolved   EventType = "reminder_resolved"
	EventAccountCreate      EventType = "account_create"
	EventMessagesPurged     EventType = "messages_purged"
)

// Event is one entry of the delivery audit trail. Operators reconstruct
// "what went out where and why" from these lines alone, so every send
// and suppression decision must produce one.
type Event struct {
	Type      EventType
	AccountID int64
	TgChatID  int64
	Details   map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "delivery").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.AccountID != 0 {
		logger = logger.With().Int64("account_id", event.AccountID).Logger()
	}
	if event.TgChatID != 0 {
		logger = logger.With().Int64("tg_chat_id", event.TgChatID).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("delivery audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}
