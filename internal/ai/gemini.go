package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/edgard/chatbridge/internal/config"
	"github.com/edgard/chatbridge/internal/database"
)

// contentGenerator is the part of genai.Models the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type geminiClient struct {
	models        contentGenerator
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	modelName     string
	timeout       time.Duration
	retry         retryPolicy
}

func newGeminiClient(ctx context.Context, cfg config.AIConfig, log *slog.Logger) (*geminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := newGeminiWithModels(gi.Models, cfg, log)
	c.log.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return c, nil
}

func newGeminiWithModels(models contentGenerator, cfg config.AIConfig, log *slog.Logger) *geminiClient {
	temperature := cfg.Temperature
	baseCfg := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemInstruction(cfg.SystemInstruction)}},
		},
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	return &geminiClient{
		models:        models,
		log:           log.With("component", "gemini_client"),
		contentConfig: baseCfg,
		modelName:     cfg.ModelName,
		timeout:       cfg.Timeout,
		retry: retryPolicy{
			maxRetries: cfg.MaxRetries,
			delay:      time.Duration(cfg.RetryDelaySeconds) * time.Second,
			retriable: func(err error) (int, bool) {
				var apiErr *genai.APIError
				if errors.As(err, &apiErr) && (apiErr.Code == 500 || apiErr.Code == 503) {
					return apiErr.Code, true
				}
				return 0, false
			},
		},
	}
}

func (c *geminiClient) Backend() string { return BackendGemini }

func (c *geminiClient) GenerateReply(ctx context.Context, history []database.HistoryEntry, prompt string) (Reply, error) {
	c.log.DebugContext(ctx, "Generating reply", "history_count", len(history))
	if strings.TrimSpace(prompt) == "" {
		return Reply{}, fmt.Errorf("prompt cannot be empty")
	}

	contents := geminiContents(history, prompt)

	text, elapsed, err := c.generate(ctx, contents, c.contentConfig)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini reply generation failed", "error", err)
		return Reply{Elapsed: elapsed}, err
	}
	return Reply{Text: text, Elapsed: elapsed}, nil
}

func (c *geminiClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	c.log.DebugContext(ctx, "Transcribing audio", "size", len(audio), "mime_type", mimeType)
	if len(audio) == 0 || mimeType == "" {
		return "", fmt.Errorf("audio data and MIME type are required for transcription")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(TranscribeInstruction),
			genai.NewPartFromBytes(audio, mimeType),
		}, genai.RoleUser),
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = nil
	zero := float32(0)
	copyCfg.Temperature = &zero

	text, _, err := c.generate(ctx, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini transcription failed", "error", err)
		return "", fmt.Errorf("gemini transcription failed: %w", err)
	}
	return text, nil
}

func (c *geminiClient) generate(ctx context.Context, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, time.Duration, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	var resp *genai.GenerateContentResponse
	err := c.retry.do(ctx, c.log, func() error {
		var callErr error
		resp, callErr = c.models.GenerateContent(ctx, c.modelName, contents, cfg)
		return callErr
	})
	elapsed := time.Since(start)
	if err != nil {
		return "", elapsed, fmt.Errorf("gemini API call failed: %w", err)
	}

	text, err := c.extractText(ctx, resp)
	return text, elapsed, err
}

// geminiContents lays out history as alternating user/model turns and ends with prompt.
func geminiContents(history []database.HistoryEntry, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)*2+1)
	for _, h := range history {
		contents = append(contents,
			genai.NewContentFromText(h.UserPrompt, genai.RoleUser),
			genai.NewContentFromText(h.ModelReply, genai.RoleModel),
		)
	}
	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}

func (c *geminiClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", ErrEmptyResponse
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "reason", reasonMsg)
		return "", fmt.Errorf("request blocked by safety filter: %s", reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "finish_reason", finishReason)
		return "", fmt.Errorf("%w (finish reason: %s)", ErrEmptyResponse, finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
