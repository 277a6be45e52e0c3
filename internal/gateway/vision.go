package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"yogabot/internal/domain"
)

const visionAnalyzePath = "/vision/v3.2/analyze"

// VisionConfig configures the Azure Computer Vision client.
type VisionConfig struct {
	Endpoint   string // e.g. https://<resource>.cognitiveservices.azure.com
	APIKey     string
	Language   string // optional: caption/tag language
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Vision implements domain.ImageAnalyzer with the Computer Vision
// "analyze" REST operation (Tags and Description features).
type Vision struct {
	endpoint   string
	apiKey     string
	language   string
	maxRetries int
	client     *http.Client
	logger     *slog.Logger
}

func NewVision(cfg VisionConfig) (*Vision, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("vision: endpoint must not be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("vision: apiKey must not be empty")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(0)
	}
	return &Vision{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		language:   cfg.Language,
		maxRetries: cfg.MaxRetries,
		client:     cfg.HTTPClient,
		logger:     cfg.Logger,
	}, nil
}

type analyzeResponse struct {
	Tags []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"tags"`
	Description struct {
		Captions []struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence"`
		} `json:"captions"`
	} `json:"description"`
}

// AnalyzeImage implements domain.ImageAnalyzer.
func (v *Vision) AnalyzeImage(ctx context.Context, image []byte) (domain.ImageAnalysis, error) {
	if len(image) == 0 {
		return domain.ImageAnalysis{}, fmt.Errorf("vision: empty image")
	}

	q := url.Values{}
	q.Set("visualFeatures", "Tags,Description")
	if v.language != "" {
		q.Set("language", v.language)
	}
	target := v.endpoint + visionAnalyzePath + "?" + q.Encode()

	resp, err := doWithRetry(ctx, v.client, v.maxRetries, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Ocp-Apim-Subscription-Key", v.apiKey)
		return req, nil
	}, v.logger)
	if err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("vision analyze: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ImageAnalysis{}, readStatusError("vision", resp)
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.ImageAnalysis{}, fmt.Errorf("decode vision response: %w", err)
	}

	result := domain.ImageAnalysis{Tags: make([]string, 0, len(out.Tags))}
	for _, t := range out.Tags {
		result.Tags = append(result.Tags, t.Name)
	}
	if len(out.Description.Captions) > 0 {
		result.Caption = out.Description.Captions[0].Text
	}

	v.logger.Debug("image analysed", "tags", len(result.Tags), "caption_len", len(result.Caption))
	return result, nil
}
