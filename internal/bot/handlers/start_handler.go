package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStartHandler greets the user. "@botname" in the welcome text is replaced
// with the bot's own username once getMe has filled it in.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	log := deps.Logger.With("handler", "start")

	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		msg := update.Message
		if msg == nil {
			return
		}

		welcome := deps.Config.Messages.Welcome
		if info := deps.Config.Telegram.BotInfo; info != nil && info.Username != "" {
			welcome = strings.ReplaceAll(welcome, "@botname", "@"+info.Username)
		}

		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: msg.Chat.ID,
			Text:   welcome,
		}); err != nil {
			log.ErrorContext(ctx, "Failed to send welcome", "error", err, "chat_id", msg.Chat.ID)
			return
		}

		if user := UserFromContext(ctx); user != nil {
			log.InfoContext(ctx, "Welcomed user", "user_record_id", user.ID, "messages", user.Messages)
		}
	}
}
