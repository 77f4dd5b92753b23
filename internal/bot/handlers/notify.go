package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	sendMessageTimeout = 15 * time.Second
	telegramTextLimit  = 4096
)

// sendNotice posts a short-lived diagnostic to the chat. The text is also logged
// at error level, and the message is deleted after staleness.notice_ttl.
func sendNotice(ctx context.Context, b *bot.Bot, deps HandlerDeps, chatID int64, replyTo int, text string) {
	log := deps.Logger.With("component", "notice", "chat_id", chatID)
	log.ErrorContext(ctx, "Sending chat notice", "text", text)

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	params := &bot.SendMessageParams{ChatID: chatID, Text: clampText(text)}
	if replyTo > 0 {
		params.ReplyParameters = &models.ReplyParameters{MessageID: replyTo, AllowSendingWithoutReply: true}
	}
	sent, err := b.SendMessage(sendCtx, params)
	if err != nil {
		log.ErrorContext(ctx, "Failed to send notice", "error", err)
		return
	}

	scheduleDeletion(ctx, b, deps, chatID, sent.ID)
}

func scheduleDeletion(ctx context.Context, b *bot.Bot, deps HandlerDeps, chatID int64, messageID int) {
	ttl := deps.Config.Staleness.NoticeTTL
	if deps.Scheduler == nil || ttl <= 0 {
		return
	}

	name := fmt.Sprintf("delete_notice_%d_%d", chatID, messageID)
	err := deps.Scheduler.ScheduleOnce(name, time.Now().Add(ttl), func(jobCtx context.Context) {
		deleteMessage(jobCtx, b, deps, chatID, messageID)
	})
	if err != nil {
		deps.Logger.WarnContext(ctx, "Failed to schedule notice deletion", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func deleteMessage(ctx context.Context, b *bot.Bot, deps HandlerDeps, chatID int64, messageID int) {
	deleteCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	if _, err := b.DeleteMessage(deleteCtx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID}); err != nil {
		deps.Logger.WarnContext(ctx, "Failed to delete message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// clampText cuts text to the Telegram message size limit.
func clampText(text string) string {
	r := []rune(text)
	if len(r) <= telegramTextLimit {
		return text
	}
	return string(r[:telegramTextLimit-1]) + "…"
}
