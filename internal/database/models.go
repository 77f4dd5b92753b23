package database

import "time"

// User is a Telegram user known to the bridge, with lightweight usage counters.
type User struct {
	ID              string    `db:"id"              json:"_id"`
	UID             int64     `db:"uid"             json:"uid"`
	CreatedAt       time.Time `db:"created_at"      json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at"      json:"updatedAt"`
	Warns           int       `db:"warns"           json:"warns"`
	Banned          bool      `db:"banned"          json:"banned"`
	Messages        int       `db:"messages"        json:"messages"`
	TelegramUserTag string    `db:"telegram_user_tag" json:"telegramUserTag"`
}

// HistoryEntry is one prompt/reply exchange with the model.
// Entries are replayed to the model as conversation history.
type HistoryEntry struct {
	ID         uint      `db:"id"`
	ChatID     int64     `db:"chat_id"`
	UserPrompt string    `db:"user_prompt"`
	ModelReply string    `db:"model_reply"`
	CreatedAt  time.Time `db:"created_at"`
}
