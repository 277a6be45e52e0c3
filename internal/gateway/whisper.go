package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"yogabot/internal/domain"
)

// WhisperConfig configures the Whisper speech-to-text backend.
type WhisperConfig struct {
	APIBase    string // e.g., "https://api.groq.com/openai/v1" or "https://api.openai.com/v1"
	APIKey     string
	Model      string // e.g., "whisper-large-v3" (Groq) or "whisper-1" (OpenAI)
	Language   string // optional: ISO-639-1 language code
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Whisper implements domain.SpeechTranscriber using the OpenAI-compatible
// /audio/transcriptions endpoint.
type Whisper struct {
	apiBase    string
	apiKey     string
	model      string
	language   string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

func NewWhisper(cfg WhisperConfig) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("whisper: apiKey must not be empty")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-large-v3"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(0)
	}
	return &Whisper{
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		language:   cfg.Language,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

type whisperResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Transcribe implements domain.SpeechTranscriber. A blank transcript counts
// as not recognised.
func (w *Whisper) Transcribe(ctx context.Context, wavPath string) (domain.Transcription, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return domain.Transcription{}, fmt.Errorf("copy audio data: %w", err)
	}
	writer.WriteField("model", w.model)
	writer.WriteField("response_format", "json")
	if w.language != "" {
		writer.WriteField("language", w.language)
	}
	if err := writer.Close(); err != nil {
		return domain.Transcription{}, fmt.Errorf("close multipart: %w", err)
	}
	payload := body.Bytes()

	resp, err := doWithRetry(ctx, w.client, w.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.apiBase+"/audio/transcriptions", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", writer.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
		return req, nil
	}, w.logger)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("whisper API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Transcription{}, readStatusError("whisper", resp)
	}

	var result whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.Transcription{}, fmt.Errorf("decode whisper response: %w", err)
	}

	w.logger.Info("transcription complete",
		"text_len", len(result.Text),
		"language", result.Language,
		"duration", result.Duration,
	)

	text := strings.TrimSpace(result.Text)
	return domain.Transcription{Text: text, Recognized: text != ""}, nil
}
