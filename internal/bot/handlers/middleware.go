// Package handlers contains Telegram bot command and message handlers,
// along with their registration logic and middleware.
package handlers

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatbridge/internal/database"
	"github.com/edgard/chatbridge/internal/staleness"
)

const registerTimeout = 10 * time.Second

type userKey struct{}

// WithUser returns a copy of ctx carrying the registered sender.
func WithUser(ctx context.Context, user *database.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the sender stored by RegisterUser, or nil.
func UserFromContext(ctx context.Context) *database.User {
	user, _ := ctx.Value(userKey{}).(*database.User)
	return user
}

// AdminOnly creates a middleware that checks if the message sender is the configured admin user.
// If not, it sends a "Not Authorized" message and stops processing by returning early.
func AdminOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil {
				return
			}

			userID := update.Message.From.ID
			if !deps.Config.IsAdmin(userID) {
				chatID := update.Message.Chat.ID
				log := deps.Logger.With("middleware", "AdminOnly")
				log.WarnContext(ctx, "Unauthorized access attempt", "user_id", userID, "chat_id", chatID)

				_, err := bot.SendMessage(ctx, &tgbot.SendMessageParams{
					ChatID: chatID,
					Text:   deps.Config.Messages.Unauthorized,
				})
				if err != nil {
					log.ErrorContext(ctx, "Failed to send unauthorized message", "error", err, "chat_id", chatID)
				}
				return
			}

			next(ctx, bot, update)
		}
	}
}

// StalenessGuard drops messages that arrive too long after they were sent.
// Dropped messages produce a short-lived notice in the chat; fresh ones reach next.
func StalenessGuard(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "StalenessGuard")

	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			now := time.Now()

			var sentAt time.Time
			if update.Message != nil && update.Message.Date != 0 {
				sentAt = time.Unix(int64(update.Message.Date), 0)
			}

			decision := deps.Guard.Evaluate(sentAt, now)
			deps.metrics().ObserveDecision(decision)

			if decision.Allowed() {
				next(ctx, bot, update)
				return
			}

			msg := update.Message
			log.WarnContext(ctx, "Dropping stale message",
				"decision", decision.Kind.String(),
				"age", decision.Age,
				"count", decision.Count,
				"chat_id", msg.Chat.ID,
				"message_id", msg.ID,
			)

			sendNotice(ctx, bot, deps, msg.Chat.ID, msg.ID, staleNoticeText(deps, decision))
		}
	}
}

func staleNoticeText(deps HandlerDeps, d staleness.Decision) string {
	if d.Kind == staleness.Blocked {
		return fmt.Sprintf(deps.Config.Messages.StaleLimit, d.Count)
	}
	return fmt.Sprintf(deps.Config.Messages.StaleNotice,
		int(deps.Guard.Threshold()/time.Second), d.AgeMinutes(), d.Count)
}

// RegisterUser upserts the message sender and stores the record in the context.
// Store failures are logged and the update continues without a user.
func RegisterUser(deps HandlerDeps) tgbot.Middleware {
	log := deps.Logger.With("middleware", "RegisterUser")

	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, bot *tgbot.Bot, update *models.Update) {
			if update.Message == nil || update.Message.From == nil || update.Message.From.IsBot {
				next(ctx, bot, update)
				return
			}

			from := update.Message.From
			upsertCtx, cancel := context.WithTimeout(ctx, registerTimeout)
			user, err := deps.Store.UpsertUser(upsertCtx, from.ID, userTag(from))
			cancel()
			if err != nil {
				log.ErrorContext(ctx, "Failed to register user", "user_id", from.ID, "error", err)
				next(ctx, bot, update)
				return
			}

			next(WithUser(ctx, user), bot, update)
		}
	}
}

func userTag(u *models.User) string {
	if u == nil || u.Username == "" {
		return ""
	}
	return "@" + u.Username
}
