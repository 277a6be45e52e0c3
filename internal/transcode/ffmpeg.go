package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"yogabot/internal/domain"
)

// FFmpeg converts through an external ffmpeg binary, for containers the
// native decoders do not cover.
type FFmpeg struct {
	path   string
	logger *slog.Logger
}

// NewFFmpeg resolves the binary once at construction.
func NewFFmpeg(path string, logger *slog.Logger) (*FFmpeg, error) {
	if path == "" {
		path = "ffmpeg"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found at %q: %w", path, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{path: resolved, logger: logger}, nil
}

// Convert implements domain.Transcoder.
func (t *FFmpeg) Convert(ctx context.Context, inputPath string, f domain.AudioFormat) (string, error) {
	if err := validateFormat(f); err != nil {
		return "", err
	}
	if _, err := os.Stat(inputPath); err != nil {
		return "", err
	}

	out := OutputPath(inputPath, f)
	args := ffmpegArgs(inputPath, out, f)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		os.Remove(out)
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return "", fmt.Errorf("ffmpeg: %w: %s", err, msg)
	}

	t.logger.Debug("audio converted", "input", inputPath, "backend", "ffmpeg")
	return out, nil
}

func ffmpegArgs(in, out string, f domain.AudioFormat) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", in,
		"-vn",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-c:a", pcmCodec(f.BitDepth),
		out,
	}
}

func pcmCodec(bitDepth int) string {
	switch bitDepth {
	case 8:
		return "pcm_u8"
	case 24:
		return "pcm_s24le"
	case 32:
		return "pcm_s32le"
	default:
		return "pcm_s16le"
	}
}
