// Package logger provides structured logging for the bridge.
// It builds slog loggers and the update logging middleware for the Telegram bot.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatbridge/internal/staleness"
)

// ParseLevel maps a config level name to a slog level. Unknown names map to info.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a logger writing to stdout and installs it as the default.
// If jsonOutput is true, logs are formatted as JSON, otherwise as text.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	logger := newLogger(os.Stdout, levelStr, jsonOutput)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Discard returns a logger that drops everything. Used when a nil logger is passed in.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SchedulerLogger returns a gocron logger writing through log.
//
//nolint:ireturn // gocron expects its own interface
func SchedulerLogger(log *slog.Logger) gocron.Logger {
	return log.With("component", "gocron")
}

// StalenessObserver logs every change of the stale streak counter.
func StalenessObserver(log *slog.Logger) staleness.Observer {
	log = log.With("component", "staleness_guard")
	return func(t staleness.Transition) {
		switch t.Op {
		case staleness.OpIncrement:
			log.Debug("Stale streak incrementing", "from", t.From, "to", t.To)
		case staleness.OpDecrement:
			log.Debug("Stale streak decrementing", "from", t.From, "to", t.To)
		case staleness.OpReset:
			if t.From != 0 {
				log.Info("Stale streak reset", "from", t.From)
			}
		default:
			log.Warn("Unknown stale streak transition", "op", t.Op, "from", t.From, "to", t.To)
		}
	}
}

// Middleware creates a logging middleware for the Telegram bot.
// It logs incoming updates, how far behind the message is, and the handling duration.
func Middleware(log *slog.Logger) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			startTime := time.Now()

			logEntry := log.With("update_id", update.ID)

			var updateType string
			switch {
			case update.Message != nil:
				msg := update.Message
				updateType = "message"
				if msg.Voice != nil {
					updateType = "voice"
				}
				var userID int64
				if msg.From != nil {
					userID = msg.From.ID
				}
				logEntry = logEntry.With(
					"message_id", msg.ID,
					"chat_id", msg.Chat.ID,
					"user_id", userID,
					"text_preview", truncateString(msg.Text, 50),
				)
				if msg.Date != 0 {
					lag := startTime.Sub(time.Unix(int64(msg.Date), 0))
					logEntry = logEntry.With("lag", lag.Round(time.Millisecond))
				}
			case update.EditedMessage != nil:
				updateType = "edited_message"
				logEntry = logEntry.With("chat_id", update.EditedMessage.Chat.ID)
			case update.CallbackQuery != nil:
				updateType = "callback_query"
				logEntry = logEntry.With(
					"callback_query_id", update.CallbackQuery.ID,
					"user_id", update.CallbackQuery.From.ID,
				)
			default:
				updateType = "other"
			}
			logEntry = logEntry.With("update_type", updateType)

			logEntry.DebugContext(ctx, "Processing update")

			next(ctx, b, update)

			logEntry.InfoContext(ctx, "Finished processing update", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
