package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"yogabot/internal/domain"
)

const wavFormatPCM = 1

// Native converts WAV, MP3 and Ogg Vorbis (Ogg Opus with the opus build
// tag) in process, without external binaries.
type Native struct {
	logger *slog.Logger
}

func NewNative(logger *slog.Logger) *Native {
	if logger == nil {
		logger = slog.Default()
	}
	return &Native{logger: logger}
}

// Convert implements domain.Transcoder.
func (n *Native) Convert(ctx context.Context, inputPath string, f domain.AudioFormat) (string, error) {
	if err := validateFormat(f); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	in, err := decodeFile(inputPath)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", inputPath, err)
	}
	if in.frames() == 0 {
		return "", fmt.Errorf("decode %s: no audio frames", inputPath)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples := remix(in.samples, in.channels, f.Channels)
	samples = resampleInterleaved(samples, f.Channels, in.sampleRate, f.SampleRate)

	out := OutputPath(inputPath, f)
	if err := writeWAV(out, samples, f); err != nil {
		os.Remove(out)
		return "", err
	}

	n.logger.Debug("audio converted",
		"input", inputPath,
		"in_rate", in.sampleRate,
		"in_channels", in.channels,
		"out_rate", f.SampleRate,
		"out_channels", f.Channels,
		"frames", len(samples)/f.Channels,
	)
	return out, nil
}

func writeWAV(path string, samples []float32, f domain.AudioFormat) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	enc := wav.NewEncoder(file, f.SampleRate, f.BitDepth, f.Channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           quantize(samples, f.BitDepth),
		SourceBitDepth: f.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finalize wav: %w", err)
	}
	return file.Close()
}
