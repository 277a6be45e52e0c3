package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// clearEnv unsets the overlay variables for the duration of a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_VERSION",
		"AZURE_OPENAI_DEPLOYMENT_ID", "VISION_ENDPOINT", "VISION_KEY", "SPEECH_KEY",
		"SPEECH_REGION", "MICROSOFT_APP_ID", "MICROSOFT_APP_PASSWORD",
		"TELEGRAM_BOT_TOKEN", "YOGABOT_PORT",
	} {
		t.Setenv(name, "")
	}
}

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_MaxConcurrentMessages(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxConcurrentMessages = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=0")
	}

	cfg.General.MaxConcurrentMessages = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("maxConcurrentMessages=1 should be valid: %v", err)
	}

	cfg.General.MaxConcurrentMessages = 101
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for maxConcurrentMessages=101")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_Paths(t *testing.T) {
	cfg := Defaults()
	cfg.Server.MessagesPath = "api/messages"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "server.messagesPath") {
		t.Fatalf("expected messagesPath error, got %v", err)
	}
}

func TestValidate_Enums(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.General.LogLevel = "loud" }, "general.logLevel"},
		{"log format", func(c *Config) { c.General.LogFormat = "xml" }, "general.logFormat"},
		{"completion provider", func(c *Config) { c.Gateway.Completion.Provider = "bard" }, "gateway.completion.provider"},
		{"speech backend", func(c *Config) { c.Gateway.Speech.Backend = "vosk" }, "gateway.speech.backend"},
		{"transcode backend", func(c *Config) { c.Transcode.Backend = "sox" }, "transcode.backend"},
		{"bit depth", func(c *Config) { c.Transcode.BitDepth = 12 }, "transcode.bitDepth"},
		{"channels", func(c *Config) { c.Transcode.Channels = 6 }, "transcode.channels"},
		{"sample rate", func(c *Config) { c.Transcode.SampleRate = 100 }, "transcode.sampleRate"},
		{"temperature", func(c *Config) { c.Dispatch.Temperature = 3 }, "dispatch.temperature"},
		{"max tokens", func(c *Config) { c.Dispatch.MaxTokens = 0 }, "dispatch.maxTokens"},
		{"retries", func(c *Config) { c.Gateway.MaxRetries = -1 }, "gateway.maxRetries"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}

func TestValidate_TelegramNeedsToken(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for telegram without token")
	}
	cfg.Channels.Telegram.Token = "123:abc"
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_AppIDNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.BotFramework.AppID = "app-id"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for appId without password")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.General.MaxConcurrentMessages = 0
	cfg.Gateway.TimeoutSeconds = 0
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "maxConcurrentMessages") || !strings.Contains(err.Error(), "timeoutSeconds") {
		t.Fatalf("expected both errors, got %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Gateway.Speech.Region = "westeurope"

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Gateway.Speech.Region != "westeurope" {
		t.Fatalf("expected 'westeurope', got %q", loaded.Gateway.Speech.Region)
	}
}

func TestLoadSave_YAMLRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	original := Defaults()
	original.Dispatch.Temperature = 0.2
	original.Channels.Telegram.AllowFrom = FlexStringList{"42"}
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Dispatch.Temperature != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", loaded.Dispatch.Temperature)
	}
	if len(loaded.Channels.Telegram.AllowFrom) != 1 || loaded.Channels.Telegram.AllowFrom[0] != "42" {
		t.Fatalf("unexpected allowFrom %v", loaded.Channels.Telegram.AllowFrom)
	}
}

func TestLoad_YAMLPartial(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
gateway:
  vision:
    endpoint: https://yoga.cognitiveservices.azure.com
channels:
  telegram:
    allowFrom: [123, "456"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Vision.Endpoint != "https://yoga.cognitiveservices.azure.com" {
		t.Errorf("unexpected endpoint %q", cfg.Gateway.Vision.Endpoint)
	}
	if cfg.Transcode.SampleRate != 16000 {
		t.Errorf("defaults should survive a partial file, got %d", cfg.Transcode.SampleRate)
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Errorf("unexpected allowFrom %v", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPEECH_REGION", "eastus")
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.Gateway.Speech.Region != "eastus" {
		t.Fatalf("environment should be applied to defaults, got %q", cfg.Gateway.Speech.Region)
	}
}

func TestLoadOrDefault_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)
	if _, err := LoadOrDefault(path); err == nil {
		t.Fatal("a broken file must not fall back to defaults")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"general": {
			"maxConcurrentMessages": 0
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for maxConcurrentMessages=0")
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_YOGABOT_VISION", "https://vision.example.com")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{
		"gateway": {
			"vision": {"endpoint": "${TEST_YOGABOT_VISION}"},
			"completion": {"provider": "${TEST_YOGABOT_PROVIDER:-openai}"}
		}
	}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Gateway.Vision.Endpoint != "https://vision.example.com" {
		t.Fatalf("unexpected vision endpoint %q", cfg.Gateway.Vision.Endpoint)
	}
	if cfg.Gateway.Completion.Provider != CompletionOpenAI {
		t.Fatalf("expected default provider openai, got %q", cfg.Gateway.Completion.Provider)
	}
}

func TestLoadRaw_KeepsReferencesAndSkipsEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_YOGABOT_VISION", "https://vision.example.com")
	t.Setenv("SPEECH_KEY", "from-env")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{"gateway": {"vision": {"endpoint": "${TEST_YOGABOT_VISION}"}}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	raw, err := LoadRaw(cfgFile)
	if err != nil {
		t.Fatalf("LoadRaw failed: %v", err)
	}
	if raw.Gateway.Vision.Endpoint != "${TEST_YOGABOT_VISION}" {
		t.Errorf("raw endpoint = %q", raw.Gateway.Vision.Endpoint)
	}
	if raw.Gateway.Speech.APIKey != "" {
		t.Errorf("raw config picked up SPEECH_KEY: %q", raw.Gateway.Speech.APIKey)
	}

	eff, err := Effective(raw)
	if err != nil {
		t.Fatalf("Effective failed: %v", err)
	}
	if eff.Gateway.Vision.Endpoint != "https://vision.example.com" || eff.Gateway.Speech.APIKey != "from-env" {
		t.Errorf("effective config = %+v", eff.Gateway)
	}
	if raw.Gateway.Vision.Endpoint != "${TEST_YOGABOT_VISION}" {
		t.Error("Effective must not modify its input")
	}
}

// --- ApplyEnv / LoadDotEnv ---

func TestApplyEnv_OverlaysWellKnownNames(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_OPENAI_API_KEY", "aoai-key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://yoga.openai.azure.com")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_ID", "gpt-4o")
	t.Setenv("VISION_ENDPOINT", "https://yoga.cognitiveservices.azure.com")
	t.Setenv("VISION_KEY", "vision-key")
	t.Setenv("SPEECH_KEY", "speech-key")
	t.Setenv("SPEECH_REGION", "westeurope")
	t.Setenv("MICROSOFT_APP_ID", "app")
	t.Setenv("MICROSOFT_APP_PASSWORD", "pw")
	t.Setenv("YOGABOT_PORT", "8080")

	cfg := Defaults()
	cfg.Gateway.Completion.Provider = CompletionOpenAI
	cfg.Gateway.Speech.Backend = SpeechWhisper
	ApplyEnv(cfg)

	if cfg.Gateway.Completion.Provider != CompletionAzure {
		t.Errorf("azure env should select azure provider, got %q", cfg.Gateway.Completion.Provider)
	}
	if cfg.Gateway.Completion.APIKey != "aoai-key" || cfg.Gateway.Completion.Deployment != "gpt-4o" {
		t.Errorf("completion not overlaid: %+v", cfg.Gateway.Completion)
	}
	if cfg.Gateway.Completion.APIVersion != "2024-06-01" {
		t.Errorf("unset env must keep file value, got %q", cfg.Gateway.Completion.APIVersion)
	}
	if cfg.Gateway.Vision.APIKey != "vision-key" || cfg.Gateway.Vision.Endpoint == "" {
		t.Errorf("vision not overlaid: %+v", cfg.Gateway.Vision)
	}
	if cfg.Gateway.Speech.Backend != SpeechAzure || cfg.Gateway.Speech.Region != "westeurope" {
		t.Errorf("speech not overlaid: %+v", cfg.Gateway.Speech)
	}
	if cfg.BotFramework.AppID != "app" || cfg.BotFramework.AppPassword != "pw" {
		t.Errorf("bot framework not overlaid: %+v", cfg.BotFramework)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestApplyEnv_BadPortIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("YOGABOT_PORT", "eighty")
	cfg := Defaults()
	ApplyEnv(cfg)
	if cfg.Server.Port != 3978 {
		t.Fatalf("expected default port, got %d", cfg.Server.Port)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, "yoga-bot-charu.env")
	content := "SPEECH_REGION=northeurope\nVISION_KEY=from-file\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VISION_KEY", "already-set")
	os.Unsetenv("SPEECH_REGION")

	loaded, err := LoadDotEnv(filepath.Join(dir, "missing.env"), envFile)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != envFile {
		t.Fatalf("expected only the existing file, got %v", loaded)
	}
	if os.Getenv("SPEECH_REGION") != "northeurope" {
		t.Errorf("expected SPEECH_REGION from file, got %q", os.Getenv("SPEECH_REGION"))
	}
	if os.Getenv("VISION_KEY") != "already-set" {
		t.Errorf("existing variables must win, got %q", os.Getenv("VISION_KEY"))
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "gateway.speech.backend")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "azure" {
		t.Fatalf("expected 'azure', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_ValidPath(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "gateway.speech.region", "eastus"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Gateway.Speech.Region != "eastus" {
		t.Fatalf("expected 'eastus', got %q", cfg.Gateway.Speech.Region)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "channels.cli.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Channels.CLI.Enabled {
		t.Fatal("expected channels.cli.enabled=false")
	}
}

func TestSetByPath_NumberConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "dispatch.maxTokens", "300"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Dispatch.MaxTokens != 300 {
		t.Fatalf("expected 300, got %d", cfg.Dispatch.MaxTokens)
	}
	if err := SetByPath(cfg, "dispatch.temperature", "0.3"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if cfg.Dispatch.Temperature != 0.3 {
		t.Fatalf("expected 0.3, got %v", cfg.Dispatch.Temperature)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	cfg := Defaults()
	cases := []struct {
		path  string
		value any
		want  string
	}{
		{"gateway.speech.regoin", "eastus", "key not found"},
		{"gateway.speech", "x", "is a section"},
		{"dispatch.maxTokens", "lots", "expected an integer"},
		{"metrics.enabled", "maybe", "expected true or false"},
		{"server.port", 3.5, "cannot assign"},
		{"", "x", "empty path"},
	}
	for _, tc := range cases {
		err := SetByPath(cfg, tc.path, tc.value)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("SetByPath(%q, %v) = %v, want error containing %q", tc.path, tc.value, err, tc.want)
		}
	}
}

func TestSetByPath_OptionalAndListFields(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "gateway.vision.apiKey", "0123"); err != nil {
		t.Fatalf("set omitempty field: %v", err)
	}
	if cfg.Gateway.Vision.APIKey != "0123" {
		t.Errorf("numeric-looking secret changed to %q", cfg.Gateway.Vision.APIKey)
	}
	if err := SetByPath(cfg, "channels.telegram.allowFrom", "111, 222,,"); err != nil {
		t.Fatalf("set list: %v", err)
	}
	if got := []string(cfg.Channels.Telegram.AllowFrom); len(got) != 2 || got[0] != "111" || got[1] != "222" {
		t.Errorf("allowFrom = %v", got)
	}
	if err := SetByPath(cfg, "server.port", 8080); err != nil {
		t.Fatalf("set typed int: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "123456789:ABCdefGHIjklMNOpqrSTUvwxyz"
	cfg.Gateway.Completion.APIKey = "aoai-1234567890abcdefghijklmnop"
	cfg.Gateway.Vision.APIKey = "vision-1234567890abcdef"
	cfg.Gateway.Speech.APIKey = "speech-1234567890abcdef"
	cfg.BotFramework.AppPassword = "app-password-12345678"
	cfg.Channels.Webhook.Secret = "webhook-secret-12345678"

	sanitized := Sanitize(cfg)

	pairs := [][2]string{
		{sanitized.Channels.Telegram.Token, cfg.Channels.Telegram.Token},
		{sanitized.Gateway.Completion.APIKey, cfg.Gateway.Completion.APIKey},
		{sanitized.Gateway.Vision.APIKey, cfg.Gateway.Vision.APIKey},
		{sanitized.Gateway.Speech.APIKey, cfg.Gateway.Speech.APIKey},
		{sanitized.BotFramework.AppPassword, cfg.BotFramework.AppPassword},
		{sanitized.Channels.Webhook.Secret, cfg.Channels.Webhook.Secret},
	}
	for i, p := range pairs {
		if p[0] == p[1] {
			t.Errorf("secret %d should be masked", i)
		}
	}
	if sanitized.Gateway.Completion.APIKey != "aoai****mnop" {
		t.Errorf("unexpected mask %q", sanitized.Gateway.Completion.APIKey)
	}
	// Verify original is untouched
	if cfg.Channels.Telegram.Token != "123456789:ABCdefGHIjklMNOpqrSTUvwxyz" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Channels.Telegram.Token = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Channels.Telegram.Token != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Channels.Telegram.Token)
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	cfg := Defaults()
	paths := ListPaths(cfg)
	if len(paths) == 0 {
		t.Fatal("expected non-empty paths")
	}

	for _, expected := range []string{"general.logLevel", "transcode.sampleRate", "gateway.speech.backend", "server.messagesPath", "gateway.vision.apiKey"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
}

// --- FlexStringList ---

func TestFlexStringList_MixedTypes(t *testing.T) {
	input := `["hello", 123, "world", 456.0]`
	var list FlexStringList
	if err := json.Unmarshal([]byte(input), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("expected 4 items, got %d", len(list))
	}
	if list[1] != "123" || list[3] != "456" {
		t.Fatalf("number conversion mismatch: %v", list)
	}
}

func TestFlexStringList_InvalidJSON(t *testing.T) {
	var list FlexStringList
	if err := json.Unmarshal([]byte(`not json`), &list); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-abc123")
	t.Setenv("MY_PORT", "9090")
	t.Setenv("EMPTY_VAR", "")
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")

	cases := []struct {
		in, want string
	}{
		{`{"apiKey": "${TEST_API_KEY}"}`, `{"apiKey": "sk-abc123"}`},
		{`{"port": "${TOTALLY_UNSET_VAR_XYZ:-8080}"}`, `{"port": "8080"}`},
		{`{"port": "${MY_PORT:-8080}"}`, `{"port": "9090"}`},
		{`"${TOTALLY_UNSET_VAR_XYZ}"`, `"${TOTALLY_UNSET_VAR_XYZ}"`},
		{`"${EMPTY_VAR:-fallback}"`, `"fallback"`},
		{`"$HOME is not substituted"`, `"$HOME is not substituted"`},
	}
	for _, tc := range cases {
		if got := ExpandEnvVars(tc.in); got != tc.want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// --- Defaults ---

func TestDefaults_ReturnsValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}
	if cfg.Transcode.SampleRate != 16000 || cfg.Transcode.Channels != 1 || cfg.Transcode.BitDepth != 16 {
		t.Fatalf("unexpected transcode defaults: %+v", cfg.Transcode)
	}
	if cfg.Dispatch.MaxTokens != 200 || cfg.Dispatch.Temperature != 0.7 {
		t.Fatalf("unexpected dispatch defaults: %+v", cfg.Dispatch)
	}
}
