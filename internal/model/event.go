package model

import (
	"time"
)

// PendingEvent is a queued real-time notification. Ingestion inserts
// one row per linked chat; the scanner sends it inside the link's work
// window, leaves it pending when outside, or suppresses it when the
// link is muted.
type PendingEvent struct {
	ID        int64       `db:"id" json:"id"`
	AccountID int64       `db:"account_id" json:"accountId"`
	TgChatID  int64       `db:"tg_chat_id" json:"tgChatId"`
	Text      string      `db:"text" json:"text"`
	Status    EventStatus `db:"status" json:"status"`
	CreatedTs time.Time   `db:"created_ts" json:"createdTs"`
	SentTs    *time.Time  `db:"sent_ts" json:"sentTs,omitempty"`
}

// EventCandidate is a pending event joined to the policy of the link it
// targets.
type EventCandidate struct {
	PendingEvent
	Target AccountChatTarget
}

type CreateEventParams struct {
	AccountID int64
	TgChatID  int64
	Text      string
}

// SentMessage is one Telegram message the bot has delivered, kept so
// the cleanup job can delete it from the chat later. DeletedTs marks
// soft deletion; retention removes the row for good.
type SentMessage struct {
	ID          int64      `db:"id" json:"id"`
	TgChatID    int64      `db:"tg_chat_id" json:"tgChatId"`
	TgMessageID int64      `db:"tg_message_id" json:"tgMessageId"`
	CreatedTs   time.Time  `db:"created_ts" json:"createdTs"`
	DeletedTs   *time.Time `db:"deleted_ts" json:"deletedTs,omitempty"`
}
