//go:build !opus

package transcode

import (
	"errors"
	"io"
)

var errOpusUnsupported = errors.New("opus decoding not compiled in (build with -tags opus, or use the ffmpeg backend)")

func decodeOggOpus(io.ReadSeeker) (pcm, error) {
	return pcm{}, errOpusUnsupported
}
