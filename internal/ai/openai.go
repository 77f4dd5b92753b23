package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
)

// openAIAPI is the subset of *openai.Client used here.
type openAIAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, request openai.AudioRequest) (openai.AudioResponse, error)
}

type openAIClient struct {
	api             openAIAPI
	log             *slog.Logger
	modelName       string
	transcribeModel string
	instruction     string
	temperature     float32
	maxTokens       int
	timeout         time.Duration
	retry           retryPolicy
}

func newOpenAIClient(cfg config.AIConfig, log *slog.Logger) (*openAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	c := newOpenAIWithAPI(openai.NewClientWithConfig(clientCfg), cfg, log)
	c.log.Info("OpenAI client initialized successfully", "model", cfg.ModelName, "base_url", clientCfg.BaseURL)
	return c, nil
}

func newOpenAIWithAPI(api openAIAPI, cfg config.AIConfig, log *slog.Logger) *openAIClient {
	transcribeModel := cfg.TranscribeModel
	if transcribeModel == "" {
		transcribeModel = openai.Whisper1
	}

	return &openAIClient{
		api:             api,
		log:             log.With("component", "openai_client"),
		modelName:       cfg.ModelName,
		transcribeModel: transcribeModel,
		instruction:     systemInstruction(cfg.SystemInstruction),
		temperature:     cfg.Temperature,
		maxTokens:       int(cfg.MaxOutputTokens),
		timeout:         cfg.Timeout,
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			delay:      time.Duration(cfg.RetryDelaySeconds) * time.Second,
			retriable: func(err error) (int, bool) {
				var apiErr *openai.APIError
				if errors.As(err, &apiErr) && retriableStatus(apiErr.HTTPStatusCode) {
					return apiErr.HTTPStatusCode, true
				}
				var reqErr *openai.RequestError
				if errors.As(err, &reqErr) && retriableStatus(reqErr.HTTPStatusCode) {
					return reqErr.HTTPStatusCode, true
				}
				return 0, false
			},
		},
	}
}

func (c *openAIClient) Backend() string { return BackendOpenAI }

func (c *openAIClient) GenerateReply(ctx context.Context, history []database.HistoryEntry, prompt string) (Reply, error) {
	c.log.DebugContext(ctx, "Generating reply", "history_count", len(history))
	if strings.TrimSpace(prompt) == "" {
		return Reply{}, fmt.Errorf("prompt cannot be empty")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.modelName,
		Messages:    openAIMessages(c.instruction, history, prompt),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := c.retry.do(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, req)
		return callErr
	})
	elapsed := time.Since(start)
	if err != nil {
		c.log.ErrorContext(ctx, "OpenAI reply generation failed", "error", err)
		return Reply{Elapsed: elapsed}, fmt.Errorf("openai API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Reply{Elapsed: elapsed}, ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		c.log.WarnContext(ctx, "OpenAI response is empty", "finish_reason", resp.Choices[0].FinishReason)
		return Reply{Elapsed: elapsed}, ErrEmptyResponse
	}

	c.log.DebugContext(ctx, "Reply generated", "total_tokens", resp.Usage.TotalTokens, "elapsed", elapsed)
	return Reply{Text: text, Elapsed: elapsed}, nil
}

func (c *openAIClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	c.log.DebugContext(ctx, "Transcribing audio", "size", len(audio), "mime_type", mimeType)
	if len(audio) == 0 {
		return "", fmt.Errorf("audio data is required for transcription")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp openai.AudioResponse
	err := c.retry.do(ctx, c.log, func() error {
		var callErr error
		// The reader is consumed by each attempt.
		resp, callErr = c.api.CreateTranscription(ctx, openai.AudioRequest{
			Model:    c.transcribeModel,
			FilePath: audioFileName(mimeType),
			Reader:   bytes.NewReader(audio),
		})
		return callErr
	})
	if err != nil {
		c.log.ErrorContext(ctx, "OpenAI transcription failed", "error", err)
		return "", fmt.Errorf("openai transcription failed: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func (c *openAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func openAIMessages(instruction string, history []database.HistoryEntry, prompt string) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)*2+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: instruction})
	for _, h := range history {
		messages = append(messages,
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: h.UserPrompt},
			openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: h.ModelReply},
		)
	}
	return append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: prompt})
}

// audioFileName picks a file name whose extension lets the API detect the format.
func audioFileName(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	switch strings.TrimSpace(mimeType) {
	case "audio/mpeg", "audio/mp3":
		return "voice.mp3"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "voice.m4a"
	case "audio/wav", "audio/x-wav":
		return "voice.wav"
	case "audio/webm":
		return "voice.webm"
	default:
		return "voice.ogg"
	}
}
