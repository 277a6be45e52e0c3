package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"yogabot/internal/domain"
)

const defaultAzureAPIVersion = "2024-06-01"

// CompletionConfig configures the chat completion client.
type CompletionConfig struct {
	// Azure selects Azure OpenAI addressing: Endpoint is the resource URL and
	// Model is the deployment ID. Otherwise Endpoint is an OpenAI-compatible
	// base URL (empty for api.openai.com).
	Azure      bool
	Endpoint   string
	APIKey     string
	APIVersion string
	Model      string
	MaxRetries int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Completion implements domain.TextCompleter on top of the OpenAI SDK.
type Completion struct {
	client oai.Client
	model  string
	logger *slog.Logger
}

// NewCompletion builds a completion client.
func NewCompletion(cfg CompletionConfig) (*Completion, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("completion: apiKey must not be empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("completion: model/deployment must not be empty")
	}
	if cfg.Azure && cfg.Endpoint == "" {
		return nil, fmt.Errorf("completion: azure endpoint must not be empty")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = SharedHTTPClient(0)
	}

	opts := []option.RequestOption{
		option.WithHTTPClient(cfg.HTTPClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Azure {
		if cfg.APIVersion == "" {
			cfg.APIVersion = defaultAzureAPIVersion
		}
		opts = append(opts,
			azure.WithEndpoint(cfg.Endpoint, cfg.APIVersion),
			azure.WithAPIKey(cfg.APIKey),
		)
	} else {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
		if cfg.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(cfg.Endpoint))
		}
	}

	return &Completion{
		client: oai.NewClient(opts...),
		model:  cfg.Model,
		logger: cfg.Logger,
	}, nil
}

// CompleteText implements domain.TextCompleter.
func (c *Completion) CompleteText(ctx context.Context, req domain.CompletionRequest) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(req.SystemPrompt),
			oai.UserMessage(req.UserPrompt),
		},
		Temperature: param.NewOpt(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(req.MaxTokens))
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty choices in response")
	}

	c.logger.Debug("completion done",
		"model", c.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"latency", time.Since(start),
	)
	return resp.Choices[0].Message.Content, nil
}
