package transcode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// pcm is decoded audio: interleaved float32 samples in [-1, 1].
type pcm struct {
	samples    []float32
	channels   int
	sampleRate int
}

func (p pcm) frames() int {
	if p.channels == 0 {
		return 0
	}
	return len(p.samples) / p.channels
}

type container int

const (
	containerUnknown container = iota
	containerWAV
	containerMP3
	containerOgg
)

// detectContainer goes by extension, then by content.
func detectContainer(path string, f io.ReadSeeker) (container, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return containerWAV, nil
	case ".mp3":
		return containerMP3, nil
	case ".ogg", ".oga", ".opus":
		return containerOgg, nil
	}

	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return containerUnknown, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return containerUnknown, err
	}
	switch mt.Extension() {
	case ".wav":
		return containerWAV, nil
	case ".mp3":
		return containerMP3, nil
	case ".ogg", ".oga", ".ogx", ".opus":
		return containerOgg, nil
	}
	return containerUnknown, fmt.Errorf("unsupported audio format %s (supported: wav, mp3, ogg)", mt.String())
}

func decodeFile(path string) (pcm, error) {
	f, err := os.Open(path)
	if err != nil {
		return pcm{}, err
	}
	defer f.Close()

	kind, err := detectContainer(path, f)
	if err != nil {
		return pcm{}, err
	}
	switch kind {
	case containerWAV:
		return decodeWAV(f)
	case containerMP3:
		return decodeMP3(f)
	default:
		p, vorbisErr := decodeOggVorbis(f)
		if vorbisErr == nil {
			return p, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return pcm{}, err
		}
		p, opusErr := decodeOggOpus(f)
		if opusErr == nil {
			return p, nil
		}
		return pcm{}, fmt.Errorf("cannot decode ogg stream: vorbis: %v; opus: %w", vorbisErr, opusErr)
	}
}

func decodeWAV(r io.ReadSeeker) (pcm, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return pcm{}, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return pcm{}, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return pcm{}, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	p := pcm{
		samples:    intSliceToFloat32(pb.Data, bd),
		channels:   int(dec.NumChans),
		sampleRate: int(dec.SampleRate),
	}
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			p.channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			p.sampleRate = pb.Format.SampleRate
		}
	}
	if p.channels <= 0 {
		p.channels = 1
	}
	if p.sampleRate <= 0 {
		return pcm{}, errors.New("wav without sample rate")
	}
	return p, nil
}

// decodeMP3 always yields 16-bit stereo, which is what go-mp3 produces.
func decodeMP3(r io.Reader) (pcm, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return pcm{}, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return pcm{}, err
	}
	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return pcm{samples: int16SliceToFloat32(ints), channels: 2, sampleRate: sr}, nil
}

func decodeOggVorbis(r io.Reader) (pcm, error) {
	samples, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return pcm{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return pcm{}, errors.New("invalid ogg/vorbis stream")
	}
	return pcm{samples: samples, channels: format.Channels, sampleRate: format.SampleRate}, nil
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	if bitDepth == 8 {
		// 8-bit wav is unsigned
		for i, v := range data {
			out[i] = float32(clamp(float64(v-128)/128.0, -1.0, 1.0))
		}
		return out
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// remix converts interleaved audio between channel counts: any count down
// to mono by averaging, mono up to stereo by duplication.
func remix(in []float32, from, to int) []float32 {
	if from == to {
		return in
	}
	if to == 1 {
		return downmixInterleaved(in, from)
	}
	mono := downmixInterleaved(in, from)
	out := make([]float32, len(mono)*to)
	for i, v := range mono {
		for c := 0; c < to; c++ {
			out[i*to+c] = v
		}
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// resampleInterleaved linearly resamples each channel of interleaved audio.
func resampleInterleaved(in []float32, channels, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	if channels == 1 {
		return resampleLinear(in, inSR, outSR)
	}
	frames := len(in) / channels
	var out []float32
	for c := 0; c < channels; c++ {
		ch := make([]float32, frames)
		for i := 0; i < frames; i++ {
			ch[i] = in[i*channels+c]
		}
		rs := resampleLinear(ch, inSR, outSR)
		if out == nil {
			out = make([]float32, len(rs)*channels)
		}
		for i, v := range rs {
			out[i*channels+c] = v
		}
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

// quantize maps [-1, 1] samples onto integer PCM of the given depth.
func quantize(in []float32, bitDepth int) []int {
	out := make([]int, len(in))
	if bitDepth == 8 {
		for i, v := range in {
			out[i] = int(math.Round(clamp(float64(v), -1, 1)*127)) + 128
		}
		return out
	}
	peak := float64(int64(1)<<(bitDepth-1) - 1)
	for i, v := range in {
		out[i] = int(math.Round(clamp(float64(v), -1, 1) * peak))
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
