package dispatch

import (
	"errors"
	"fmt"
)

// ErrMissingAttachment is returned when an image or voice query arrives
// without the file it refers to and no sample fallback is configured.
var ErrMissingAttachment = errors.New("no attachment to analyse")

// GatewayError wraps a failure from one of the AI services.
type GatewayError struct {
	Service string // completion | vision | speech
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// TranscodeError wraps a failed audio conversion. A voice query cannot
// proceed past it.
type TranscodeError struct {
	Input string
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Input, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Service names used in GatewayError.
const (
	ServiceCompletion = "completion"
	ServiceVision     = "vision"
	ServiceSpeech     = "speech"
)
