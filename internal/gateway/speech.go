package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"yogabot/internal/domain"
)

const speechRecognitionPath = "/speech/recognition/conversation/cognitiveservices/v1"

// recognitionSuccess is the RecognitionStatus of a usable transcript.
// NoMatch, InitialSilenceTimeout and BabbleTimeout mean the audio was
// processed but nothing was recognised.
const recognitionSuccess = "Success"

// SpeechConfig configures the Azure Speech short-audio client.
type SpeechConfig struct {
	Region     string // e.g. "westeurope"
	APIKey     string
	Language   string // default en-US
	Endpoint   string // optional override of https://<region>.stt.speech.microsoft.com
	SampleRate int    // rate declared in Content-Type; default 16000
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Speech implements domain.SpeechTranscriber with the Speech service REST
// API for short audio.
type Speech struct {
	endpoint   string
	apiKey     string
	language   string
	sampleRate int
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

func NewSpeech(cfg SpeechConfig) (*Speech, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("speech: apiKey must not be empty")
	}
	if cfg.Endpoint == "" {
		if cfg.Region == "" {
			return nil, fmt.Errorf("speech: region or endpoint is required")
		}
		cfg.Endpoint = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region)
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = domain.SpeechFormat.SampleRate
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(0)
	}
	return &Speech{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		sampleRate: cfg.SampleRate,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

type recognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

// Transcribe implements domain.SpeechTranscriber. wavPath must hold PCM WAV
// at the configured sample rate.
func (s *Speech) Transcribe(ctx context.Context, wavPath string) (domain.Transcription, error) {
	audio, err := os.ReadFile(wavPath)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("read audio: %w", err)
	}

	q := url.Values{}
	q.Set("language", s.language)
	q.Set("format", "simple")
	target := s.endpoint + speechRecognitionPath + "?" + q.Encode()
	contentType := fmt.Sprintf("audio/wav; codecs=audio/pcm; samplerate=%d", s.sampleRate)

	resp, err := doWithRetry(ctx, s.client, s.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(audio))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Ocp-Apim-Subscription-Key", s.apiKey)
		return req, nil
	}, s.logger)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("speech recognition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Transcription{}, readStatusError("speech", resp)
	}

	var out recognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Transcription{}, fmt.Errorf("decode speech response: %w", err)
	}
	if out.RecognitionStatus == "Error" {
		return domain.Transcription{}, fmt.Errorf("speech recognition: service reported error")
	}

	recognized := out.RecognitionStatus == recognitionSuccess && strings.TrimSpace(out.DisplayText) != ""
	s.logger.Debug("speech recognised",
		"status", out.RecognitionStatus,
		"text_len", len(out.DisplayText),
	)
	return domain.Transcription{Text: out.DisplayText, Recognized: recognized}, nil
}
