package model

import (
	"time"
)

// Account is an Avito seller identity, created on the first webhook or
// sync that mentions its avito_user_id.
type Account struct {
	ID          int64     `db:"id" json:"id"`
	AvitoUserID int64     `db:"avito_user_id" json:"avitoUserId"`
	Alias       *string   `db:"alias" json:"alias,omitempty"`
	Name        *string   `db:"name" json:"name,omitempty"`
	CreatedTs   time.Time `db:"created_ts" json:"createdTs"`
}

type UpsertAccountParams struct {
	AvitoUserID int64
	Alias       *string
	Name        *string
}

type Bot struct {
	ID       int64   `db:"id" json:"id"`
	TgBotID  int64   `db:"tg_bot_id" json:"tgBotId"`
	Username *string `db:"username" json:"username,omitempty"`
	IsActive bool    `db:"is_active" json:"isActive"`
}

type Chat struct {
	ID       int64    `db:"id" json:"id"`
	TgChatID int64    `db:"tg_chat_id" json:"tgChatId"`
	Type     ChatType `db:"type" json:"type"`
	Title    *string  `db:"title" json:"title,omitempty"`
}
