package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatbridge/internal/database"
)

const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// NewChatHandler returns the default handler relaying text and voice messages to the model.
func NewChatHandler(deps HandlerDeps) bot.HandlerFunc {
	return chatHandler{deps}.Handle
}

type chatHandler struct {
	deps HandlerDeps
}

// exchange tracks one message on its way through the model.
type exchange struct {
	msg         *models.Message
	user        *database.User
	start       time.Time
	placeholder *models.Message
	prompt      string
	modelTime   time.Duration
}

func (h chatHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "chat")

	msg := update.Message
	if msg == nil {
		log.DebugContext(ctx, "Ignoring non-message update", "update_id", update.ID)
		return
	}
	if msg.From != nil && msg.From.IsBot {
		return
	}

	ex := &exchange{msg: msg, user: UserFromContext(ctx), start: time.Now()}
	log = log.With("chat_id", msg.Chat.ID, "message_id", msg.ID)

	messageType := messageTypeText
	text := strings.TrimSpace(messageText(msg))
	if msg.Voice != nil {
		messageType = messageTypeVoice
	} else if text == "" {
		log.InfoContext(ctx, "Unsupported message type")
		sendNotice(ctx, b, h.deps, msg.Chat.ID, msg.ID, h.deps.Config.Messages.UnsupportedInput)
		return
	}

	ex.placeholder = h.sendPlaceholder(ctx, b, msg)

	processCtx, cancel := context.WithTimeout(ctx, h.deps.Config.Bridge.ProcessTimeout)
	defer cancel()

	stopTyping := keepTyping(processCtx, b, h.deps, msg.Chat.ID)
	defer stopTyping()

	if messageType == messageTypeVoice {
		transcript, err := h.transcribe(processCtx, b, msg.Voice)
		if err != nil {
			stopTyping()
			log.ErrorContext(ctx, "Voice transcription failed", "error", err)
			h.fail(ctx, b, ex, fmt.Errorf("%s: %w", h.deps.Config.Messages.VoiceError, err))
			return
		}
		text = transcript
	}

	env := buildEnvelope(h.deps.Config, envelopeInput{
		Msg:         msg,
		MessageType: messageType,
		Text:        text,
		User:        ex.user,
		StaleStreak: h.deps.Guard.Count(),
		Now:         ex.start,
	})
	prompt, err := env.Encode()
	if err != nil {
		stopTyping()
		h.fail(ctx, b, ex, err)
		return
	}
	ex.prompt = prompt

	history, err := h.deps.Store.GetRecentHistory(processCtx, h.deps.Config.Database.HistoryWindow)
	if err != nil {
		log.WarnContext(ctx, "Failed to load prompt history, continuing without it", "error", err)
	}

	reply, err := h.deps.AI.GenerateReply(processCtx, history, prompt)
	stopTyping()
	ex.modelTime = reply.Elapsed
	if err != nil {
		h.deps.metrics().ObserveModelRequest(h.deps.AI.Backend(), outcomeError, reply.Elapsed)
		log.ErrorContext(ctx, "Model reply failed", "error", err)
		h.fail(ctx, b, ex, err)
		return
	}
	h.deps.metrics().ObserveModelRequest(h.deps.AI.Backend(), outcomeSuccess, reply.Elapsed)

	entry := &database.HistoryEntry{ChatID: msg.Chat.ID, UserPrompt: prompt, ModelReply: reply.Text}
	if err := h.deps.Store.SaveHistoryEntry(ctx, entry); err != nil {
		log.ErrorContext(ctx, "Failed to save prompt history", "error", err)
	}

	h.deliver(ctx, b, ex, reply.Text)

	if ex.user != nil {
		if err := h.deps.Store.IncrementMessages(ctx, ex.user.UID); err != nil {
			log.WarnContext(ctx, "Failed to count message", "user_id", ex.user.UID, "error", err)
		}
	}
	log.InfoContext(ctx, "Reply delivered", "total", time.Since(ex.start), "model", ex.modelTime)
}

func (h chatHandler) sendPlaceholder(ctx context.Context, b *bot.Bot, msg *models.Message) *models.Message {
	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	sent, err := b.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID: msg.Chat.ID,
		Text:   h.deps.Config.Bridge.Placeholder,
		ReplyParameters: &models.ReplyParameters{
			MessageID:                msg.ID,
			AllowSendingWithoutReply: true,
		},
	})
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to send placeholder", "chat_id", msg.Chat.ID, "error", err)
		return nil
	}
	return sent
}

func (h chatHandler) transcribe(ctx context.Context, b *bot.Bot, voice *models.Voice) (string, error) {
	audio, mimeType, err := downloadVoice(ctx, b, voice, h.deps.Config.Bridge.MaxVoiceBytes)
	if err != nil {
		return "", err
	}
	text, err := h.deps.AI.Transcribe(ctx, audio, mimeType)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty transcription")
	}
	return text, nil
}

// deliver puts the reply into the placeholder. When that is impossible the
// reply is sent as a new plain text message.
func (h chatHandler) deliver(ctx context.Context, b *bot.Bot, ex *exchange, reply string) {
	text := reply
	if h.deps.Config.Bridge.ShowTimingFooter {
		text += "\n\n" + h.timingFooter(ex)
	}
	text = clampText(text)

	sendCtx, cancel := context.WithTimeout(ctx, sendMessageTimeout)
	defer cancel()

	if ex.placeholder != nil {
		_, err := b.EditMessageText(sendCtx, &bot.EditMessageTextParams{
			ChatID:    ex.msg.Chat.ID,
			MessageID: ex.placeholder.ID,
			Text:      text,
			ParseMode: models.ParseModeMarkdownV1,
		})
		if err == nil {
			return
		}
		h.deps.Logger.WarnContext(ctx, "Failed to edit placeholder, sending reply as plain text", "chat_id", ex.msg.Chat.ID, "error", err)
		deleteMessage(ctx, b, h.deps, ex.msg.Chat.ID, ex.placeholder.ID)
	}

	_, err := b.SendMessage(sendCtx, &bot.SendMessageParams{
		ChatID: ex.msg.Chat.ID,
		Text:   text,
		ReplyParameters: &models.ReplyParameters{
			MessageID:                ex.msg.ID,
			AllowSendingWithoutReply: true,
		},
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send reply", "chat_id", ex.msg.Chat.ID, "error", err)
	}
}

// fail counts a warning on the sender, removes the placeholder and reports err in the chat.
func (h chatHandler) fail(ctx context.Context, b *bot.Bot, ex *exchange, err error) {
	if ex.user != nil {
		if warnErr := h.deps.Store.IncrementWarns(ctx, ex.user.UID); warnErr != nil {
			h.deps.Logger.WarnContext(ctx, "Failed to count warning", "user_id", ex.user.UID, "error", warnErr)
		}
	}

	if ex.placeholder != nil {
		deleteMessage(ctx, b, h.deps, ex.msg.Chat.ID, ex.placeholder.ID)
	}

	prompt := ex.prompt
	if prompt == "" {
		prompt = messageText(ex.msg)
	}
	text := fmt.Sprintf(h.deps.Config.Messages.GenerationError, err, prompt) + "\n\n" + h.timingFooter(ex)
	sendNotice(ctx, b, h.deps, ex.msg.Chat.ID, ex.msg.ID, text)
}

func (h chatHandler) timingFooter(ex *exchange) string {
	return fmt.Sprintf(h.deps.Config.Messages.TimingFooter,
		time.Since(ex.start).Seconds(), ex.modelTime.Seconds())
}
