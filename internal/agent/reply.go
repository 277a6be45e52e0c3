package agent

import (
	"context"
	"errors"
	"fmt"

	"yogabot/internal/dispatch"
)

// Error kinds, as reported in events and metrics.
const (
	KindMissingAttachment = "missing_attachment"
	KindGateway           = "gateway"
	KindTranscode         = "transcode"
	KindTimeout           = "timeout"
	KindRateLimited       = "rate_limited"
	KindInternal          = "internal"
)

// RateLimitError means the message gave up waiting for a throttle token.
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Err.Error() }
func (e *RateLimitError) Unwrap() error { return e.Err }

// ErrorKind classifies a dispatch error.
func ErrorKind(err error) string {
	var (
		gwErr *dispatch.GatewayError
		tcErr *dispatch.TranscodeError
		rlErr *RateLimitError
	)
	switch {
	case errors.Is(err, dispatch.ErrMissingAttachment):
		return KindMissingAttachment
	case errors.As(err, &rlErr):
		return KindRateLimited
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &gwErr):
		return KindGateway
	case errors.As(err, &tcErr):
		return KindTranscode
	default:
		return KindInternal
	}
}

// RenderError turns a dispatch failure into the text sent to the user.
// Internal details stay in the logs.
func RenderError(intent dispatch.Intent, err error) string {
	switch ErrorKind(err) {
	case KindMissingAttachment:
		if intent == dispatch.VoiceQuery {
			return "Please attach a voice recording to your message."
		}
		return "Please attach an image to your message."
	case KindRateLimited:
		return "Sorry, I'm receiving too many messages right now. Please try again in a minute."
	case KindTimeout:
		return "Sorry, that took too long. Please try again."
	case KindGateway:
		var gwErr *dispatch.GatewayError
		errors.As(err, &gwErr)
		return fmt.Sprintf("Sorry, the %s service is unavailable right now. Please try again later.", gwErr.Service)
	case KindTranscode:
		return "Sorry, I couldn't read that audio file."
	default:
		return "Sorry, something went wrong while handling your message."
	}
}
