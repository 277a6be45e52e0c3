package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Completion providers.
const (
	CompletionAzure  = "azure"
	CompletionOpenAI = "openai"
)

// Speech backends.
const (
	SpeechAzure   = "azure"
	SpeechWhisper = "whisper"
)

// Transcode backends.
const (
	TranscodeNative = "native"
	TranscodeFFmpeg = "ffmpeg"
)

// Config is the root configuration for yogabot.
type Config struct {
	General      GeneralConfig      `json:"general"`
	Server       ServerConfig       `json:"server"`
	BotFramework BotFrameworkConfig `json:"botFramework"`
	Channels     ChannelsConfig     `json:"channels"`
	Gateway      GatewayConfig      `json:"gateway"`
	Dispatch     DispatchConfig     `json:"dispatch"`
	Transcode    TranscodeConfig    `json:"transcode"`
	History      HistoryConfig      `json:"history"`
	Metrics      MetricsConfig      `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`
	LogFormat             string `json:"logFormat"` // "text" | "json"
	MaxConcurrentMessages int    `json:"maxConcurrentMessages"`
	MessageTimeoutSeconds int    `json:"messageTimeoutSeconds"`
	RatePerMinute         int    `json:"ratePerMinute"` // 0 = unlimited
	RateBurst             int    `json:"rateBurst"`
	Proxy                 string `json:"proxy,omitempty"` // SOCKS5 host:port for outbound AI calls
}

// ServerConfig is the shared HTTP listener for Bot Framework, webhook and metrics.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	MessagesPath string `json:"messagesPath"`
	AskPath      string `json:"askPath"`
	MetricsPath  string `json:"metricsPath"`
}

type BotFrameworkConfig struct {
	Enabled            bool   `json:"enabled"`
	AppID              string `json:"appId,omitempty"` // empty = emulator mode, no auth
	AppPassword        string `json:"appPassword,omitempty"`
	TokenURL           string `json:"tokenUrl"`
	OpenIDMetadataURL  string `json:"openIdMetadataUrl"`
	MaxAttachmentBytes int64  `json:"maxAttachmentBytes"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Webhook  WebhookConfig  `json:"webhook"`
	CLI      CLIConfig      `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

type WebhookConfig struct {
	Enabled             bool   `json:"enabled"`
	Secret              string `json:"secret,omitempty"` // HMAC-SHA256 key; empty = unsigned
	ReplyTimeoutSeconds int    `json:"replyTimeoutSeconds"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

type GatewayConfig struct {
	Completion     CompletionConfig `json:"completion"`
	Vision         VisionConfig     `json:"vision"`
	Speech         SpeechConfig     `json:"speech"`
	TimeoutSeconds int              `json:"timeoutSeconds"`
	MaxRetries     int              `json:"maxRetries"`
}

type CompletionConfig struct {
	Provider   string `json:"provider"` // "azure" | "openai"
	Endpoint   string `json:"endpoint,omitempty"`
	APIKey     string `json:"apiKey,omitempty"`
	APIVersion string `json:"apiVersion,omitempty"`
	Deployment string `json:"deployment,omitempty"` // deployment id (azure) or model name
}

type VisionConfig struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Language string `json:"language,omitempty"`
}

type SpeechConfig struct {
	Backend        string `json:"backend"` // "azure" | "whisper"
	APIKey         string `json:"apiKey,omitempty"`
	Region         string `json:"region,omitempty"`
	Language       string `json:"language,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	WhisperAPIBase string `json:"whisperApiBase,omitempty"`
	WhisperModel   string `json:"whisperModel,omitempty"`
}

type DispatchConfig struct {
	SystemPrompt string  `json:"systemPrompt,omitempty"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	SampleImage  string  `json:"sampleImage,omitempty"`
	SampleVoice  string  `json:"sampleVoice,omitempty"`
	ScratchDir   string  `json:"scratchDir,omitempty"`
}

type TranscodeConfig struct {
	Backend    string `json:"backend"` // "native" | "ffmpeg"
	FFmpegPath string `json:"ffmpegPath"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
	BitDepth   int    `json:"bitDepth"`
}

type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// DefaultConfigDir returns the default config directory (~/.yogabot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".yogabot"
	}
	return filepath.Join(home, ".yogabot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, expands ${VAR} references, overlays
// the well-known environment variables and validates the result.
func Load(path string) (*Config, error) {
	cfg, err := readConfig(path, true)
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadRaw reads a config file as written: no ${VAR} expansion, no
// environment overlay, no validation. Use it to edit and re-save a file
// without persisting values that came from the environment.
func LoadRaw(path string) (*Config, error) {
	return readConfig(path, false)
}

// Effective returns the config a raw file resolves to at runtime.
func Effective(raw *Config) (*Config, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	cfg := Defaults()
	if err := json.Unmarshal([]byte(ExpandEnvVars(string(data))), cfg); err != nil {
		return nil, err
	}
	return finish(cfg)
}

func readConfig(path string, expand bool) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// ${VAR} and ${VAR:-default}
	if expand {
		data = []byte(ExpandEnvVars(string(data)))
	}

	if isYAML(path) {
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// (still overlaid with the environment). This is how the bot runs from a
// bare .env file.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Defaults())
	}
	return nil, err
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg)

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Dispatch.SampleImage = ExpandPath(cfg.Dispatch.SampleImage)
	cfg.Dispatch.SampleVoice = ExpandPath(cfg.Dispatch.SampleVoice)
	cfg.Dispatch.ScratchDir = ExpandPath(cfg.Dispatch.ScratchDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON re-encodes a YAML document as JSON so the json tags stay the
// single source of field names.
func yamlToJSON(data []byte) ([]byte, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return json.Marshal(m)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

// Save writes cfg as indented JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(m); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentMessages < 1 || cfg.General.MaxConcurrentMessages > 100 {
		errs = append(errs, "general.maxConcurrentMessages must be between 1 and 100")
	}
	if cfg.General.MessageTimeoutSeconds < 1 {
		errs = append(errs, "general.messageTimeoutSeconds must be >= 1")
	}
	if cfg.General.RatePerMinute < 0 {
		errs = append(errs, "general.ratePerMinute must be >= 0")
	}
	if cfg.General.RatePerMinute > 0 && cfg.General.RateBurst < 1 {
		errs = append(errs, "general.rateBurst must be >= 1 when ratePerMinute is set")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	for _, p := range [][2]string{
		{"server.messagesPath", cfg.Server.MessagesPath},
		{"server.askPath", cfg.Server.AskPath},
		{"server.metricsPath", cfg.Server.MetricsPath},
	} {
		if !strings.HasPrefix(p[1], "/") {
			errs = append(errs, p[0]+" must start with /")
		}
	}

	if cfg.BotFramework.MaxAttachmentBytes < 1 {
		errs = append(errs, "botFramework.maxAttachmentBytes must be >= 1")
	}
	if cfg.BotFramework.AppID != "" && cfg.BotFramework.AppPassword == "" {
		errs = append(errs, "botFramework.appPassword is required when appId is set")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}
	if cfg.Channels.Webhook.ReplyTimeoutSeconds < 1 {
		errs = append(errs, "channels.webhook.replyTimeoutSeconds must be >= 1")
	}

	switch cfg.Gateway.Completion.Provider {
	case CompletionAzure, CompletionOpenAI:
	default:
		errs = append(errs, "gateway.completion.provider must be one of: azure, openai")
	}
	switch cfg.Gateway.Speech.Backend {
	case SpeechAzure, SpeechWhisper:
	default:
		errs = append(errs, "gateway.speech.backend must be one of: azure, whisper")
	}
	if cfg.Gateway.TimeoutSeconds < 1 {
		errs = append(errs, "gateway.timeoutSeconds must be >= 1")
	}
	if cfg.Gateway.MaxRetries < 0 || cfg.Gateway.MaxRetries > 10 {
		errs = append(errs, "gateway.maxRetries must be between 0 and 10")
	}

	if cfg.Dispatch.MaxTokens < 1 {
		errs = append(errs, "dispatch.maxTokens must be >= 1")
	}
	if cfg.Dispatch.Temperature < 0 || cfg.Dispatch.Temperature > 2 {
		errs = append(errs, "dispatch.temperature must be between 0 and 2")
	}

	switch cfg.Transcode.Backend {
	case TranscodeNative, TranscodeFFmpeg:
	default:
		errs = append(errs, "transcode.backend must be one of: native, ffmpeg")
	}
	if cfg.Transcode.SampleRate < 8000 || cfg.Transcode.SampleRate > 48000 {
		errs = append(errs, "transcode.sampleRate must be between 8000 and 48000")
	}
	if cfg.Transcode.Channels < 1 || cfg.Transcode.Channels > 2 {
		errs = append(errs, "transcode.channels must be 1 or 2")
	}
	switch cfg.Transcode.BitDepth {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, "transcode.bitDepth must be one of: 8, 16, 24, 32")
	}

	if cfg.History.Enabled && cfg.History.RetentionDays < 1 {
		errs = append(errs, "history.retentionDays must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
