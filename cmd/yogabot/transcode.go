package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"yogabot/internal/transcode"
)

func transcodeCmd() *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "transcode <in> <out>",
		Short: "Convert an audio file to the speech service format",
		Long:  "Converts ogg (vorbis/opus), mp3 or wav input to PCM WAV using the configured sample rate, channels and bit depth.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if backend == "" {
				backend = cfg.Transcode.Backend
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tc, err := transcode.New(transcode.Config{
				Backend:    backend,
				FFmpegPath: cfg.Transcode.FFmpegPath,
				Logger:     logger,
			})
			if err != nil {
				return err
			}

			f := speechFormat(cfg)
			written, err := tc.Convert(ctx, args[0], f)
			if err != nil {
				return err
			}
			if err := os.Rename(written, args[1]); err != nil {
				os.Remove(written)
				return fmt.Errorf("move output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d Hz, %d ch, %d-bit)\n", args[0], args[1], f.SampleRate, f.Channels, f.BitDepth)
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "transcode backend override (native, ffmpeg)")
	return cmd
}
