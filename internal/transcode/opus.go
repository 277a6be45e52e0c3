//go:build opus

package transcode

import (
	"io"

	popus "github.com/pekim/opus"
)

const opusSampleRate = 48000

func decodeOggOpus(r io.ReadSeeker) (pcm, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return pcm{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		samples []float32
		buf     = make([]int16, opusSampleRate*ch/2) // ~0.5s
	)
	for {
		n, err := dec.Read(buf) // n = samples per channel
		if n > 0 {
			samples = append(samples, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return pcm{}, err
		}
	}
	return pcm{samples: samples, channels: ch, sampleRate: opusSampleRate}, nil
}
