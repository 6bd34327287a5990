package model

import (
	"time"
)

// AccountChatLink is the policy unit: one row per (account, chat)
// pairing. work_from/work_to are wall-clock times in Tz; a window with
// WorkFrom > WorkTo wraps midnight.
type AccountChatLink struct {
	AccountID       int64      `db:"account_id" json:"accountId"`
	ChatID          int64      `db:"chat_id" json:"chatId"`
	BotID           *int64     `db:"bot_id" json:"botId,omitempty"`
	Muted           bool       `db:"muted" json:"muted"`
	WorkFrom        TimeOfDay  `db:"work_from" json:"workFrom"`
	WorkTo          TimeOfDay  `db:"work_to" json:"workTo"`
	Tz              string     `db:"tz" json:"tz"`
	DailyDigestTime *TimeOfDay `db:"daily_digest_time" json:"dailyDigestTime,omitempty"`
	LastDigestTs    *time.Time `db:"last_digest_ts" json:"lastDigestTs,omitempty"`
	CreatedTs       time.Time  `db:"created_ts" json:"createdTs"`
	UpdatedTs       time.Time  `db:"updated_ts" json:"updatedTs"`
}

type UpdateLinkPolicyParams struct {
	Muted           *bool
	WorkFrom        *TimeOfDay
	WorkTo          *TimeOfDay
	Tz              *string
	DailyDigestTime *TimeOfDay
	ClearDigestTime bool
}

// AccountChatTarget is the read-only projection of account_chat_targets
// that the dispatch coordinator consumes. It is never written back.
type AccountChatTarget struct {
	AccountID       int64      `db:"account_id" json:"accountId"`
	ChatID          int64      `db:"chat_id" json:"chatId"`
	AvitoUserID     int64      `db:"avito_user_id" json:"avitoUserId"`
	TgChatID        int64      `db:"tg_chat_id" json:"tgChatId"`
	ChatType        ChatType   `db:"chat_type" json:"chatType"`
	ChatTitle       *string    `db:"chat_title" json:"chatTitle,omitempty"`
	TgBotID         *int64     `db:"tg_bot_id" json:"tgBotId,omitempty"`
	BotUsername     *string    `db:"bot_username" json:"botUsername,omitempty"`
	BotActive       bool       `db:"bot_active" json:"botActive"`
	Muted           bool       `db:"muted" json:"muted"`
	WorkFrom        TimeOfDay  `db:"work_from" json:"workFrom"`
	WorkTo          TimeOfDay  `db:"work_to" json:"workTo"`
	Tz              string     `db:"tz" json:"tz"`
	DailyDigestTime *TimeOfDay `db:"daily_digest_time" json:"dailyDigestTime,omitempty"`
	LastDigestTs    *time.Time `db:"last_digest_ts" json:"lastDigestTs,omitempty"`
	CreatedTs       time.Time  `db:"created_ts" json:"createdTs"`
}

// Deliverable reports whether anything may be sent to this target at
// all: not muted and, when a bot is linked, that bot still active.
func (t *AccountChatTarget) Deliverable() bool {
	if t.Muted {
		return false
	}
	if t.TgBotID != nil && !t.BotActive {
		return false
	}
	return true
}
