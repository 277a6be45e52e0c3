package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are tried, in order, by LoadDotEnv when no file is named.
var DefaultEnvFiles = []string{".env", "yoga-bot-charu.env"}

// LoadDotEnv loads KEY=value files into the process environment. Missing
// files are skipped and variables already set are never overwritten.
func LoadDotEnv(files ...string) ([]string, error) {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	var loaded []string
	for _, f := range files {
		f = ExpandPath(f)
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, fmt.Errorf("load env file %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// ApplyEnv overlays the well-known environment variables onto cfg. A set,
// non-empty variable wins over the file value.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, name string) bool {
		if v := os.Getenv(name); v != "" {
			*dst = v
			return true
		}
		return false
	}

	azure := false
	azure = setString(&cfg.Gateway.Completion.APIKey, "AZURE_OPENAI_API_KEY") || azure
	azure = setString(&cfg.Gateway.Completion.Endpoint, "AZURE_OPENAI_ENDPOINT") || azure
	azure = setString(&cfg.Gateway.Completion.APIVersion, "AZURE_OPENAI_API_VERSION") || azure
	azure = setString(&cfg.Gateway.Completion.Deployment, "AZURE_OPENAI_DEPLOYMENT_ID") || azure
	if azure {
		cfg.Gateway.Completion.Provider = CompletionAzure
	}

	setString(&cfg.Gateway.Vision.Endpoint, "VISION_ENDPOINT")
	setString(&cfg.Gateway.Vision.APIKey, "VISION_KEY")

	if setString(&cfg.Gateway.Speech.APIKey, "SPEECH_KEY") {
		cfg.Gateway.Speech.Backend = SpeechAzure
	}
	setString(&cfg.Gateway.Speech.Region, "SPEECH_REGION")

	setString(&cfg.BotFramework.AppID, "MICROSOFT_APP_ID")
	setString(&cfg.BotFramework.AppPassword, "MICROSOFT_APP_PASSWORD")

	setString(&cfg.Channels.Telegram.Token, "TELEGRAM_BOT_TOKEN")

	if v := os.Getenv("YOGABOT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}
