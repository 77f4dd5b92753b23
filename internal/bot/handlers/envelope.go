package handlers

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
)

const (
	messageTypeText  = "text"
	messageTypeVoice = "voice"

	clockLayout = "2006-01-02 15:04:05 Monday"
)

// Envelope is the JSON document sent to the model for every user message.
type Envelope struct {
	Type           string            `json:"type"`
	UserRecordID   string            `json:"user_record_id,omitempty"`
	UserID         int64             `json:"user_id"`
	ChatID         int64             `json:"chat_id"`
	MessageID      int               `json:"message_id"`
	SentAt         string            `json:"sent_at,omitempty"`
	Clocks         map[string]string `json:"clocks,omitempty"`
	LatencySeconds float64           `json:"latency_seconds"`
	User           *EnvelopeUser     `json:"user,omitempty"`
	Language       string            `json:"language,omitempty"`
	StaleStreak    int               `json:"stale_streak"`
	Note           string            `json:"note,omitempty"`
	Message        string            `json:"message"`
	ReplyTo        *EnvelopeReply    `json:"reply_to,omitempty"`
}

// EnvelopeUser is what the bridge knows about the sender.
type EnvelopeUser struct {
	CreatedAt string `json:"created_at"`
	Warns     int    `json:"warns"`
	Banned    bool   `json:"banned"`
	Messages  int    `json:"messages"`
	Tag       string `json:"tag,omitempty"`
}

// EnvelopeReply describes the message the user replied to.
type EnvelopeReply struct {
	MessageID    int           `json:"message_id"`
	ChatID       int64         `json:"chat_id"`
	ChatUsername string        `json:"chat_username,omitempty"`
	ChatType     string        `json:"chat_type,omitempty"`
	From         *EnvelopeFrom `json:"from,omitempty"`
	Date         string        `json:"date,omitempty"`
	Text         string        `json:"text,omitempty"`
}

// EnvelopeFrom is the sender of a replied-to message.
type EnvelopeFrom struct {
	ID       int64  `json:"id"`
	IsBot    bool   `json:"is_bot"`
	Username string `json:"username,omitempty"`
	Language string `json:"language,omitempty"`
}

type envelopeInput struct {
	Msg         *models.Message
	MessageType string
	Text        string
	User        *database.User
	StaleStreak int
	Now         time.Time
}

func buildEnvelope(cfg *config.Config, in envelopeInput) Envelope {
	msg := in.Msg
	env := Envelope{
		Type:        in.MessageType,
		ChatID:      msg.Chat.ID,
		MessageID:   msg.ID,
		Clocks:      clocks(cfg.Bridge.Clocks, in.Now),
		StaleStreak: in.StaleStreak,
		Note:        cfg.Bridge.Note,
		Message:     in.Text,
	}

	if msg.From != nil {
		env.UserID = msg.From.ID
		env.Language = msg.From.LanguageCode
	}

	if msg.Date != 0 {
		sentAt := time.Unix(int64(msg.Date), 0).UTC()
		env.SentAt = sentAt.Format(time.RFC3339)
		env.LatencySeconds = max(in.Now.Sub(sentAt).Seconds(), 0)
	}

	if in.User != nil {
		env.UserRecordID = in.User.ID
		env.User = &EnvelopeUser{
			CreatedAt: in.User.CreatedAt.UTC().Format(time.RFC3339),
			Warns:     in.User.Warns,
			Banned:    in.User.Banned,
			Messages:  in.User.Messages,
			Tag:       in.User.TelegramUserTag,
		}
	}

	if reply := msg.ReplyToMessage; reply != nil {
		env.ReplyTo = &EnvelopeReply{
			MessageID:    reply.ID,
			ChatID:       reply.Chat.ID,
			ChatUsername: reply.Chat.Username,
			ChatType:     string(reply.Chat.Type),
			Text:         messageText(reply),
		}
		if reply.Date != 0 {
			env.ReplyTo.Date = time.Unix(int64(reply.Date), 0).UTC().Format(time.RFC3339)
		}
		if reply.From != nil {
			env.ReplyTo.From = &EnvelopeFrom{
				ID:       reply.From.ID,
				IsBot:    reply.From.IsBot,
				Username: reply.From.Username,
				Language: reply.From.LanguageCode,
			}
		}
	}

	return env
}

// Encode renders the envelope as indented JSON.
func (e Envelope) Encode() (string, error) {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode prompt envelope: %w", err)
	}
	return string(data), nil
}

func clocks(cfgClocks []config.ClockConfig, now time.Time) map[string]string {
	if len(cfgClocks) == 0 {
		return nil
	}
	out := make(map[string]string, len(cfgClocks))
	for _, c := range cfgClocks {
		zone := time.FixedZone(c.Label, int(c.OffsetHours*3600))
		out[c.Label] = now.In(zone).Format(clockLayout)
	}
	return out
}

func messageText(msg *models.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}
