package config

import "time"

// Default values for optional configuration.
const (
	DefaultLogLevel = "info"

	DefaultAIBackend           = "gemini"
	DefaultAIModelName         = "gemini-2.0-flash"
	DefaultAITranscribeModel   = "whisper-1"
	DefaultAITemperature       = 1.0
	DefaultAIMaxOutputTokens   = 2048
	DefaultAIMaxRetries        = 2
	DefaultAIRetryDelaySeconds = 2
	DefaultAITimeout           = 2 * time.Minute

	DefaultDBPath              = "storage.db"
	DefaultDBHistoryWindow     = 20
	DefaultDBMaxHistoryEntries = 500

	DefaultStaleThreshold = 30 * time.Second
	DefaultStaleMaxStreak = 3
	DefaultStaleNoticeTTL = 15 * time.Second

	DefaultBridgePlaceholder    = "ㅤ" // Hangul filler, renders as an empty bubble
	DefaultBridgeMaxVoiceBytes  = 20 * 1024 * 1024
	DefaultBridgeProcessTimeout = 3 * time.Minute

	DefaultHTTPAddr = ":8080"
)

// DefaultBridgeNote is passed to the model with every prompt.
const DefaultBridgeNote = "Reply in the user's language. Treat the sender as the owner when user_id matches the configured admin."

// DefaultClocks are the wall clocks included in every prompt.
var DefaultClocks = []ClockConfig{
	{Label: "GMT+6 Astana/Almaty", OffsetHours: 6},
	{Label: "GMT+5 Aktobe", OffsetHours: 5},
}

// DefaultTasks are the scheduled tasks enabled out of the box.
var DefaultTasks = map[string]TaskConfig{
	"sql_maintenance": {Enabled: true, Schedule: "0 0 4 * * *"},
	"history_prune":   {Enabled: true, Schedule: "0 30 * * * *"},
}

// DefaultMessages are the built-in user facing texts.
var DefaultMessages = MessagesConfig{
	Welcome:          "Hi! Let's talk.",
	Unauthorized:     "You are not authorized to use this command.",
	HistoryReset:     "Prompt history has been cleared.",
	ResetError:       "Failed to clear prompt history. Please try again later.",
	StaleNotice:      "I'm lagging behind real time by more than %d sec. (about ±%d min).\n\nMessages dropped: %d",
	StaleLimit:       "Stale message limit exceeded (%d).",
	GenerationError:  "Oops, error ._. => %v\n\nPrompted: %s",
	VoiceError:       "Could not transcribe the voice message.",
	Stats:            "Users: %d\nStale streak: %d/%d",
	TimingFooter:     "🕗 • Total generation time: %.2fs.\n🌐 • Text generation time: %.2fs.",
	UnsupportedInput: "Only text and voice messages are supported.",
}
