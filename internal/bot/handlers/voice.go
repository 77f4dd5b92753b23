package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const voiceDownloadTimeout = 30 * time.Second

var errVoiceTooLarge = errors.New("voice message is too large")

// downloadVoice fetches a voice note through the Bot API file endpoint.
// Files larger than maxBytes are rejected.
func downloadVoice(ctx context.Context, b *bot.Bot, voice *models.Voice, maxBytes int64) (data []byte, mimeType string, err error) {
	if voice == nil || voice.FileID == "" {
		return nil, "", fmt.Errorf("empty voice file id")
	}
	if size := int64(voice.FileSize); size > maxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", errVoiceTooLarge, size)
	}
	if ctx.Err() != nil {
		return nil, "", fmt.Errorf("context cancelled before file download: %w", ctx.Err())
	}

	downloadCtx, cancel := context.WithTimeout(ctx, voiceDownloadTimeout)
	defer cancel()

	fileObj, err := b.GetFile(downloadCtx, &bot.GetFileParams{FileID: voice.FileID})
	if err != nil {
		return nil, "", fmt.Errorf("failed to get file: %w", err)
	}
	if fileObj.FilePath == "" {
		return nil, "", fmt.Errorf("empty file path returned from Telegram")
	}

	req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, b.FileDownloadLink(fileObj), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download file: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close response body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}

	data, err = io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file data: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", errVoiceTooLarge, maxBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("received empty file data")
	}

	mimeType = voice.MimeType
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
