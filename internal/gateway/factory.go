package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"yogabot/internal/config"
	"yogabot/internal/domain"
)

// Set bundles the three AI service clients the dispatcher needs.
type Set struct {
	Completer domain.TextCompleter
	Vision    domain.ImageAnalyzer
	Speech    domain.SpeechTranscriber
}

// Observer is told about every gateway call; used for metrics.
type Observer func(service string, elapsed time.Duration, err error)

// ErrNotConfigured is returned by a service whose credentials are missing.
var ErrNotConfigured = errors.New("service not configured")

// NewSet builds all gateway clients from config. A service with missing
// settings is replaced by a stub that fails every call with
// ErrNotConfigured, so a text-only deployment still starts.
func NewSet(cfg *config.Config, logger *slog.Logger, obs Observer) (*Set, error) {
	gw := cfg.Gateway
	httpClient, err := NewHTTPClient(time.Duration(gw.TimeoutSeconds)*time.Second, cfg.General.Proxy)
	if err != nil {
		return nil, err
	}

	set := &Set{}

	completion, err := NewCompletion(CompletionConfig{
		Azure:      gw.Completion.Provider == config.CompletionAzure,
		Endpoint:   gw.Completion.Endpoint,
		APIKey:     gw.Completion.APIKey,
		APIVersion: gw.Completion.APIVersion,
		Model:      gw.Completion.Deployment,
		MaxRetries: gw.MaxRetries,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("completion gateway disabled", "err", err)
		set.Completer = unconfigured{name: "completion", reason: err}
	} else {
		set.Completer = completion
	}

	vision, err := NewVision(VisionConfig{
		Endpoint:   gw.Vision.Endpoint,
		APIKey:     gw.Vision.APIKey,
		Language:   gw.Vision.Language,
		MaxRetries: gw.MaxRetries,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		logger.Warn("vision gateway disabled", "err", err)
		set.Vision = unconfigured{name: "vision", reason: err}
	} else {
		set.Vision = vision
	}

	speech, err := newSpeechBackend(gw, cfg.Transcode.SampleRate, httpClient, logger)
	if err != nil {
		logger.Warn("speech gateway disabled", "err", err)
		set.Speech = unconfigured{name: "speech", reason: err}
	} else {
		set.Speech = speech
	}

	if obs != nil {
		set.Completer = observedCompleter{next: set.Completer, obs: obs}
		set.Vision = observedVision{next: set.Vision, obs: obs}
		set.Speech = observedSpeech{next: set.Speech, obs: obs}
	}
	return set, nil
}

func newSpeechBackend(gw config.GatewayConfig, sampleRate int, httpClient *http.Client, logger *slog.Logger) (domain.SpeechTranscriber, error) {
	switch gw.Speech.Backend {
	case config.SpeechWhisper:
		return NewWhisper(WhisperConfig{
			APIBase:    gw.Speech.WhisperAPIBase,
			APIKey:     gw.Speech.APIKey,
			Model:      gw.Speech.WhisperModel,
			Language:   gw.Speech.Language,
			MaxRetries: gw.MaxRetries,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	case config.SpeechAzure, "":
		return NewSpeech(SpeechConfig{
			Region:     gw.Speech.Region,
			APIKey:     gw.Speech.APIKey,
			Language:   gw.Speech.Language,
			Endpoint:   gw.Speech.Endpoint,
			SampleRate: sampleRate,
			MaxRetries: gw.MaxRetries,
			HTTPClient: httpClient,
			Logger:     logger,
		})
	default:
		return nil, fmt.Errorf("unknown speech backend %q", gw.Speech.Backend)
	}
}

type unconfigured struct {
	name   string
	reason error
}

func (u unconfigured) err() error {
	return fmt.Errorf("%s: %w: %v", u.name, ErrNotConfigured, u.reason)
}

func (u unconfigured) CompleteText(context.Context, domain.CompletionRequest) (string, error) {
	return "", u.err()
}

func (u unconfigured) AnalyzeImage(context.Context, []byte) (domain.ImageAnalysis, error) {
	return domain.ImageAnalysis{}, u.err()
}

func (u unconfigured) Transcribe(context.Context, string) (domain.Transcription, error) {
	return domain.Transcription{}, u.err()
}

type observedCompleter struct {
	next domain.TextCompleter
	obs  Observer
}

func (o observedCompleter) CompleteText(ctx context.Context, req domain.CompletionRequest) (string, error) {
	start := time.Now()
	out, err := o.next.CompleteText(ctx, req)
	o.obs("completion", time.Since(start), err)
	return out, err
}

type observedVision struct {
	next domain.ImageAnalyzer
	obs  Observer
}

func (o observedVision) AnalyzeImage(ctx context.Context, image []byte) (domain.ImageAnalysis, error) {
	start := time.Now()
	out, err := o.next.AnalyzeImage(ctx, image)
	o.obs("vision", time.Since(start), err)
	return out, err
}

type observedSpeech struct {
	next domain.SpeechTranscriber
	obs  Observer
}

func (o observedSpeech) Transcribe(ctx context.Context, wavPath string) (domain.Transcription, error) {
	start := time.Now()
	out, err := o.next.Transcribe(ctx, wavPath)
	o.obs("speech", time.Since(start), err)
	return out, err
}
