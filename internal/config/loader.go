package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// LoadConfig reads configuration from:
// 1. Default values
// 2. the YAML file at path (optional)
// 3. BOT_* environment variables (BOT_TELEGRAM_TOKEN, BOT_AI_API_KEY, ...)
func LoadConfig(path string) (*Config, error) {
	startTime := time.Now()
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Info("Configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	slog.Debug("Configuration loaded",
		"path", path,
		"ai_backend", cfg.AI.Backend,
		"ai_model", cfg.AI.ModelName,
		"db_path", cfg.Database.Path,
		"stale_threshold", cfg.Staleness.Threshold,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks the struct tags of the whole configuration tree.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// IsAdmin reports whether userID is the configured admin. No admin is
// configured when AdminUserID is zero.
func (c *Config) IsAdmin(userID int64) bool {
	return c.Telegram.AdminUserID != 0 && userID == c.Telegram.AdminUserID
}

// setDefaults registers every key so that AutomaticEnv can bind it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", false)

	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)

	v.SetDefault("ai.backend", DefaultAIBackend)
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.model_name", DefaultAIModelName)
	v.SetDefault("ai.transcribe_model", DefaultAITranscribeModel)
	v.SetDefault("ai.temperature", DefaultAITemperature)
	v.SetDefault("ai.max_output_tokens", DefaultAIMaxOutputTokens)
	v.SetDefault("ai.system_instruction", "")
	v.SetDefault("ai.max_retries", DefaultAIMaxRetries)
	v.SetDefault("ai.retry_delay_seconds", DefaultAIRetryDelaySeconds)
	v.SetDefault("ai.timeout", DefaultAITimeout)

	v.SetDefault("database.path", DefaultDBPath)
	v.SetDefault("database.history_window", DefaultDBHistoryWindow)
	v.SetDefault("database.max_history_entries", DefaultDBMaxHistoryEntries)

	v.SetDefault("staleness.threshold", DefaultStaleThreshold)
	v.SetDefault("staleness.max_streak", DefaultStaleMaxStreak)
	v.SetDefault("staleness.notice_ttl", DefaultStaleNoticeTTL)

	v.SetDefault("bridge.placeholder", DefaultBridgePlaceholder)
	v.SetDefault("bridge.note", DefaultBridgeNote)
	v.SetDefault("bridge.clocks", DefaultClocks)
	v.SetDefault("bridge.max_voice_bytes", DefaultBridgeMaxVoiceBytes)
	v.SetDefault("bridge.process_timeout", DefaultBridgeProcessTimeout)
	v.SetDefault("bridge.show_timing_footer", true)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", DefaultHTTPAddr)

	for name, task := range DefaultTasks {
		v.SetDefault("scheduler.tasks."+name+".enabled", task.Enabled)
		v.SetDefault("scheduler.tasks."+name+".schedule", task.Schedule)
	}

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.unauthorized", DefaultMessages.Unauthorized)
	v.SetDefault("messages.history_reset", DefaultMessages.HistoryReset)
	v.SetDefault("messages.reset_error", DefaultMessages.ResetError)
	v.SetDefault("messages.stale_notice", DefaultMessages.StaleNotice)
	v.SetDefault("messages.stale_limit", DefaultMessages.StaleLimit)
	v.SetDefault("messages.generation_error", DefaultMessages.GenerationError)
	v.SetDefault("messages.voice_error", DefaultMessages.VoiceError)
	v.SetDefault("messages.stats", DefaultMessages.Stats)
	v.SetDefault("messages.timing_footer", DefaultMessages.TimingFooter)
	v.SetDefault("messages.unsupported_input", DefaultMessages.UnsupportedInput)
}
