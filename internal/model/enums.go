package model

type ChatType string

const (
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
	ChatTypePrivate    ChatType = "private"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusSent       EventStatus = "sent"
	EventStatusSuppressed EventStatus = "suppressed"
)
