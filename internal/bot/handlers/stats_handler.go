package handlers

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewStatsHandler returns a handler for the /stats command.
func NewStatsHandler(deps HandlerDeps) bot.HandlerFunc {
	return statsHandler{deps}.Handle
}

type statsHandler struct {
	deps HandlerDeps
}

func (h statsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "stats")
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	users, err := h.deps.Store.ListUsers(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list users", "error", err)
		sendNotice(ctx, b, h.deps, chatID, update.Message.ID, err.Error())
		return
	}

	text := fmt.Sprintf(h.deps.Config.Messages.Stats, len(users), h.deps.Guard.Count(), h.deps.Guard.MaxStreak())
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		log.ErrorContext(ctx, "Failed to send stats", "error", err, "chat_id", chatID)
	}
}
