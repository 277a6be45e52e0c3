// Package transcode converts recorded audio into the PCM WAV layout the
// speech service accepts.
package transcode

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"yogabot/internal/domain"
)

// Config selects and configures a backend.
type Config struct {
	Backend    string // "native" (default) | "ffmpeg"
	FFmpegPath string
	Logger     *slog.Logger
}

// New returns the backend named by cfg.Backend.
func New(cfg Config) (domain.Transcoder, error) {
	switch cfg.Backend {
	case "", "native":
		return NewNative(cfg.Logger), nil
	case "ffmpeg":
		return NewFFmpeg(cfg.FFmpegPath, cfg.Logger)
	default:
		return nil, fmt.Errorf("unknown transcode backend %q", cfg.Backend)
	}
}

// OutputPath is where a conversion of inputPath to f is written: next to
// the input, named after the target layout.
func OutputPath(inputPath string, f domain.AudioFormat) string {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	container := f.Container
	if container == "" {
		container = "wav"
	}
	out := fmt.Sprintf("%s_%dhz_%dch.%s", base, f.SampleRate, f.Channels, container)
	if out == inputPath {
		out = fmt.Sprintf("%s_out.%s", base, container)
	}
	return out
}

func validateFormat(f domain.AudioFormat) error {
	if f.Container != "" && f.Container != "wav" {
		return fmt.Errorf("unsupported output container %q", f.Container)
	}
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	switch f.BitDepth {
	case 8, 16, 24, 32:
	default:
		return fmt.Errorf("invalid bit depth %d", f.BitDepth)
	}
	return nil
}
