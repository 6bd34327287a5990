package model

import (
	"time"
)

// Reminder tracks one unanswered Avito conversation per account.
// FirstTs never changes after insert; LastReminder and ReminderCount
// advance together, once per escalation, via a conditional update.
// The row is deleted by ingestion when the seller finally replies.
type Reminder struct {
	ID            int64      `db:"id" json:"id"`
	AccountID     int64      `db:"account_id" json:"accountId"`
	AvitoChatID   int64      `db:"avito_chat_id" json:"avitoChatId"`
	Title         *string    `db:"title" json:"title,omitempty"`
	FirstTs       time.Time  `db:"first_ts" json:"firstTs"`
	LastReminder  *time.Time `db:"last_reminder" json:"lastReminder,omitempty"`
	ReminderCount int        `db:"reminder_count" json:"reminderCount"`
}

// ReminderCandidate is a reminder joined to the delivery policy of one
// chat its account is linked to.
type ReminderCandidate struct {
	Reminder
	Target AccountChatTarget
}

type UpsertReminderParams struct {
	AccountID   int64
	AvitoChatID int64
	Title       *string
}
