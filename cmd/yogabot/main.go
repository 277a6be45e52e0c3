package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"yogabot/internal/config"
)

var (
	version    = "0.1.0"
	logger     = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	configPath string   // overridable via --config flag
	envFiles   []string // overridable via --env-file flag
	logLevel   string
	logFormat  string
)

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

func main() {
	root := &cobra.Command{
		Use:   "yogabot",
		Short: "Yoga chat bot: pose advice, image description and voice notes",
		Long: "yogabot answers yoga questions over Bot Framework, Telegram, a webhook and the terminal,\n" +
			"using Azure OpenAI for text, Azure Computer Vision for images and Azure Speech for voice.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadDotEnv(envFiles...)
			if err != nil {
				return err
			}
			if len(loaded) > 0 {
				logger.Debug("loaded env files", "files", loaded)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.yogabot/config.json)")
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", config.DefaultEnvFiles, "dotenv files to load before reading config")
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format override (text, json)")

	root.AddCommand(serveCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(classifyCmd())
	root.AddCommand(transcodeCmd())
	root.AddCommand(initCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(serviceCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config (defaults plus environment when the file is
// missing) and reconfigures the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.General.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.General.LogFormat = logFormat
	}
	logger = newLogger(cfg.General.LogLevel, cfg.General.LogFormat)
	slog.SetDefault(logger)
	return cfg, nil
}

func newLogger(level, format string) *slog.Logger {
	lvl, ok := logLevelMap[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: lvl}))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yogabot %s\n", version)
		},
	}
}
