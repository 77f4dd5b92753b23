// Package ai talks to the generative model behind the bridge.
// Two backends are supported: Google Gemini through the genai SDK and any
// OpenAI-compatible endpoint through go-openai.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
)

const (
	BackendGemini = "gemini"
	BackendOpenAI = "openai"
)

var (
	// ErrEmptyResponse is returned when the model produced no usable text.
	ErrEmptyResponse = errors.New("model returned an empty response")

	// ErrUnknownBackend is returned by NewClient for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown model backend")
)

// Reply is a generated model answer and how long the model call took.
type Reply struct {
	Text    string
	Elapsed time.Duration
}

// Client defines the model operations used by the bridge handlers.
type Client interface {
	// GenerateReply sends prompt after the given history and returns the model answer.
	GenerateReply(ctx context.Context, history []database.HistoryEntry, prompt string) (Reply, error)

	// Transcribe turns a voice recording into text.
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)

	// Backend names the backend serving this client.
	Backend() string
}

// NewClient creates the client for cfg.Backend. An empty backend selects Gemini.
func NewClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (Client, error) {
	switch cfg.Backend {
	case "", BackendGemini:
		return newGeminiClient(ctx, cfg, log)
	case BackendOpenAI:
		return newOpenAIClient(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

func systemInstruction(configured string) string {
	return BridgeSystemInstruction + configured
}

// retryPolicy repeats a model call on transient failures.
type retryPolicy struct {
	maxRetries int
	delay      time.Duration
	retriable  func(error) (code int, ok bool)
}

func (p retryPolicy) do(ctx context.Context, log *slog.Logger, call func() error) error {
	var err error
	for i := 0; i <= p.maxRetries; i++ {
		err = call()
		if err == nil {
			return nil
		}

		log.WarnContext(ctx, "Model API call failed, checking for retry", "attempt", i+1, "max_retries", p.maxRetries, "error", err)

		code, ok := p.retriable(err)
		if !ok {
			log.ErrorContext(ctx, "Model API call failed with non-retriable error", "error", err)
			return fmt.Errorf("model API call failed: %w", err)
		}
		if i == p.maxRetries {
			log.ErrorContext(ctx, "Model API call failed after max retries", "error", err, "code", code)
			return fmt.Errorf("model API call failed after %d retries (code %d): %w", p.maxRetries, code, err)
		}

		log.InfoContext(ctx, "Retrying model API call", "delay", p.delay, "code", code)
		select {
		case <-ctx.Done():
			return fmt.Errorf("model API call aborted while waiting to retry: %w", ctx.Err())
		case <-time.After(p.delay):
		}
	}
	return err
}

func retriableStatus(code int) bool {
	return code == 429 || code == 500 || code == 502 || code == 503
}
