// Package config provides configuration loading, validation, and defaults
// for the chat bridge. Values come from built-in defaults, an optional YAML
// file, and BOT_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"time"

	"github.com/go-telegram/bot/models"
)

// ErrConfiguration wraps every error returned by LoadConfig.
var ErrConfiguration = errors.New("configuration error")

// Config is the root configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	AI        AIConfig        `mapstructure:"ai"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Staleness StalenessConfig `mapstructure:"staleness"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log output.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds bot credentials. BotInfo is filled at runtime from getMe.
type TelegramConfig struct {
	Token       string       `mapstructure:"token"         validate:"required"`
	AdminUserID int64        `mapstructure:"admin_user_id" validate:"gte=0"`
	BotInfo     *models.User `mapstructure:"-"`
}

// AIConfig selects and configures the model backend.
type AIConfig struct {
	Backend           string        `mapstructure:"backend"             validate:"oneof=gemini openai"`
	APIKey            string        `mapstructure:"api_key"             validate:"required"`
	BaseURL           string        `mapstructure:"base_url"            validate:"omitempty,url"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	TranscribeModel   string        `mapstructure:"transcribe_model"`
	Temperature       float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxOutputTokens   int32         `mapstructure:"max_output_tokens"   validate:"gt=0"`
	SystemInstruction string        `mapstructure:"system_instruction"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=60"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=10m"`
}

// DatabaseConfig configures the sqlite store.
type DatabaseConfig struct {
	Path              string `mapstructure:"path"                validate:"required"`
	HistoryWindow     int    `mapstructure:"history_window"      validate:"min=0,max=200"`
	MaxHistoryEntries int    `mapstructure:"max_history_entries" validate:"min=1"`
}

// StalenessConfig configures the stale message guard.
type StalenessConfig struct {
	Threshold time.Duration `mapstructure:"threshold"  validate:"min=1s"`
	MaxStreak int           `mapstructure:"max_streak" validate:"min=0"`
	NoticeTTL time.Duration `mapstructure:"notice_ttl" validate:"min=0"`
}

// ClockConfig is a labelled wall clock included in every prompt.
type ClockConfig struct {
	Label       string  `mapstructure:"label"        validate:"required"`
	OffsetHours float64 `mapstructure:"offset_hours" validate:"min=-12,max=14"`
}

// BridgeConfig shapes the prompt envelope and the reply flow.
type BridgeConfig struct {
	Placeholder      string        `mapstructure:"placeholder"        validate:"required"`
	Note             string        `mapstructure:"note"`
	Clocks           []ClockConfig `mapstructure:"clocks"             validate:"dive"`
	MaxVoiceBytes    int64         `mapstructure:"max_voice_bytes"    validate:"gt=0"`
	ProcessTimeout   time.Duration `mapstructure:"process_timeout"    validate:"min=1s"`
	ShowTimingFooter bool          `mapstructure:"show_timing_footer"`
}

// HTTPConfig configures the status server.
type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// TaskConfig configures a single scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their settings.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig holds user facing texts. Templates use fmt verbs.
type MessagesConfig struct {
	Welcome          string `mapstructure:"welcome"           validate:"required"`
	Unauthorized     string `mapstructure:"unauthorized"      validate:"required"`
	HistoryReset     string `mapstructure:"history_reset"     validate:"required"`
	ResetError       string `mapstructure:"reset_error"       validate:"required"`
	StaleNotice      string `mapstructure:"stale_notice"      validate:"required"`
	StaleLimit       string `mapstructure:"stale_limit"       validate:"required"`
	GenerationError  string `mapstructure:"generation_error"  validate:"required"`
	VoiceError       string `mapstructure:"voice_error"       validate:"required"`
	Stats            string `mapstructure:"stats"             validate:"required"`
	TimingFooter     string `mapstructure:"timing_footer"     validate:"required"`
	UnsupportedInput string `mapstructure:"unsupported_input" validate:"required"`
}
