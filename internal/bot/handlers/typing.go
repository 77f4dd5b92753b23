package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram clears a chat action after about five seconds.
const typingInterval = 4 * time.Second

// keepTyping shows the typing indicator in chatID until the returned stop func is called.
// stop may be called more than once.
func keepTyping(ctx context.Context, b *bot.Bot, deps HandlerDeps, chatID int64) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(typingInterval)
		defer ticker.Stop()

		for {
			if _, err := b.SendChatAction(ctx, &bot.SendChatActionParams{ChatID: chatID, Action: models.ChatActionTyping}); err != nil {
				if ctx.Err() != nil {
					return
				}
				deps.Logger.DebugContext(ctx, "Typing action failed", "chat_id", chatID, "error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
