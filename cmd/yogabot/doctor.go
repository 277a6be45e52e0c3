package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"yogabot/internal/config"
	"yogabot/internal/history"
	"yogabot/internal/transcode"
)

type checkResult int

const (
	checkPass checkResult = iota
	checkWarn
	checkFail
)

type doctorCheck struct {
	name   string
	result checkResult
	detail string
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your yogabot installation",
		Long: `Verifies that the configuration, AI service credentials, audio
transcoder, transports and history database are correctly set up.
Reports pass/fail for each check without calling the AI services.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "yogabot doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			cfgPath := config.ExpandPath(resolveConfigPath())
			var checks []doctorCheck
			if _, err := os.Stat(cfgPath); err != nil {
				checks = append(checks, doctorCheck{"Config file", checkWarn, "not found at " + cfgPath + " (using defaults and environment)"})
			} else {
				checks = append(checks, doctorCheck{"Config file", checkPass, cfgPath})
			}

			cfg, err := config.LoadOrDefault(cfgPath)
			if err != nil {
				checks = append(checks, doctorCheck{"Config validation", checkFail, err.Error()})
				return report(out, checks)
			}
			checks = append(checks, doctorCheck{"Config validation", checkPass, "valid"})
			checks = append(checks, diagnose(cmd.Context(), cfg)...)
			return report(out, checks)
		},
	}
}

// diagnose checks everything that can be verified locally.
func diagnose(ctx context.Context, cfg *config.Config) []doctorCheck {
	var checks []doctorCheck
	gw := cfg.Gateway

	missing := lo.Filter([]lo.Tuple2[string, string]{
		lo.T2("endpoint", gw.Completion.Endpoint),
		lo.T2("apiKey", gw.Completion.APIKey),
		lo.T2("deployment", gw.Completion.Deployment),
	}, func(t lo.Tuple2[string, string], _ int) bool {
		if gw.Completion.Provider == config.CompletionOpenAI && t.A == "endpoint" {
			return false
		}
		return t.B == ""
	})
	if len(missing) > 0 {
		names := lo.Map(missing, func(t lo.Tuple2[string, string], _ int) string { return t.A })
		checks = append(checks, doctorCheck{"Completion", checkFail, fmt.Sprintf("%s: missing %v", gw.Completion.Provider, names)})
	} else {
		checks = append(checks, doctorCheck{"Completion", checkPass, gw.Completion.Provider + " / " + gw.Completion.Deployment})
	}

	if gw.Vision.Endpoint == "" || gw.Vision.APIKey == "" {
		checks = append(checks, doctorCheck{"Vision", checkWarn, "endpoint or apiKey missing; image queries will fail"})
	} else {
		checks = append(checks, doctorCheck{"Vision", checkPass, gw.Vision.Endpoint})
	}

	switch {
	case gw.Speech.APIKey == "":
		checks = append(checks, doctorCheck{"Speech", checkWarn, "apiKey missing; voice queries will fail"})
	case gw.Speech.Backend == config.SpeechAzure && gw.Speech.Region == "" && gw.Speech.Endpoint == "":
		checks = append(checks, doctorCheck{"Speech", checkWarn, "azure backend needs region or endpoint"})
	default:
		checks = append(checks, doctorCheck{"Speech", checkPass, gw.Speech.Backend + " " + gw.Speech.Language})
	}

	if _, err := transcode.New(transcode.Config{Backend: cfg.Transcode.Backend, FFmpegPath: cfg.Transcode.FFmpegPath, Logger: logger}); err != nil {
		checks = append(checks, doctorCheck{"Transcoder", checkFail, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"Transcoder", checkPass, fmt.Sprintf("%s -> %d Hz, %d ch, %d-bit",
			cfg.Transcode.Backend, cfg.Transcode.SampleRate, cfg.Transcode.Channels, cfg.Transcode.BitDepth)})
	}

	transports := lo.Compact([]string{
		lo.Ternary(cfg.BotFramework.Enabled, "botframework", ""),
		lo.Ternary(cfg.Channels.Webhook.Enabled, "webhook", ""),
		lo.Ternary(cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "", "telegram", ""),
	})
	if len(transports) == 0 {
		checks = append(checks, doctorCheck{"Transports", checkWarn, "none enabled for serve (chat and ask still work)"})
	} else {
		checks = append(checks, doctorCheck{"Transports", checkPass, fmt.Sprint(transports)})
	}
	if cfg.BotFramework.Enabled && cfg.BotFramework.AppID == "" {
		checks = append(checks, doctorCheck{"Bot auth", checkWarn, "no appId: inbound tokens are not verified (emulator mode)"})
	}

	if needsHTTP(cfg) {
		if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
			checks = append(checks, doctorCheck{"HTTP port", checkWarn, fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err)})
		} else {
			checks = append(checks, doctorCheck{"HTTP port", checkPass, fmt.Sprintf(":%d available", cfg.Server.Port)})
		}
	}

	if cfg.History.Enabled {
		if err := checkHistory(ctx, cfg.History.DBPath); err != nil {
			checks = append(checks, doctorCheck{"History", checkFail, err.Error()})
		} else {
			checks = append(checks, doctorCheck{"History", checkPass, cfg.History.DBPath})
		}
	}

	scratch := lo.Ternary(cfg.Dispatch.ScratchDir != "", cfg.Dispatch.ScratchDir, os.TempDir())
	if err := checkWritable(scratch); err != nil {
		checks = append(checks, doctorCheck{"Scratch dir", checkFail, err.Error()})
	} else {
		checks = append(checks, doctorCheck{"Scratch dir", checkPass, scratch})
	}

	for name, sample := range map[string]string{"Sample image": cfg.Dispatch.SampleImage, "Sample voice": cfg.Dispatch.SampleVoice} {
		if sample == "" {
			continue
		}
		if _, err := os.Stat(sample); err != nil {
			checks = append(checks, doctorCheck{name, checkWarn, err.Error()})
		} else {
			checks = append(checks, doctorCheck{name, checkPass, sample})
		}
	}
	return checks
}

func report(out io.Writer, checks []doctorCheck) error {
	labels := map[checkResult]string{checkPass: "PASS", checkWarn: "WARN", checkFail: "FAIL"}
	for _, c := range checks {
		fmt.Fprintf(out, "  [%s] %-20s %s\n", labels[c.result], c.name, c.detail)
	}

	counts := lo.CountValuesBy(checks, func(c doctorCheck) checkResult { return c.result })
	fmt.Fprintf(out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", counts[checkPass], counts[checkWarn], counts[checkFail])
	if counts[checkFail] > 0 {
		fmt.Fprintf(out, "\nPlease fix the failed checks before running yogabot.\n")
		return fmt.Errorf("%d check(s) failed", counts[checkFail])
	}
	if counts[checkWarn] > 0 {
		fmt.Fprintf(out, "\nyogabot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(out, "\nAll checks passed! yogabot is ready to run.\n")
	}
	return nil
}

func checkHistory(ctx context.Context, dbPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s, err := history.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.Recent(ctx, 1)
	return err
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}
