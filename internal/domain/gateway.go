package domain

import "context"

// CompletionRequest is a single-turn chat completion: one system
// instruction, one user prompt.
type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// TextCompleter generates a reply from a hosted language model.
type TextCompleter interface {
	CompleteText(ctx context.Context, req CompletionRequest) (string, error)
}

// ImageAnalysis is the tag list and caption produced by an image tagging service.
// Tags keep the order the service returned them in.
type ImageAnalysis struct {
	Tags    []string
	Caption string
}

// ImageAnalyzer tags and captions raw image bytes.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte) (ImageAnalysis, error)
}

// Transcription is the outcome of one recognition pass. Recognized is false
// when the service ran but produced no usable transcript.
type Transcription struct {
	Text       string
	Recognized bool
}

// SpeechTranscriber recognises speech in a normalised WAV file.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, wavPath string) (Transcription, error)
}

// AudioFormat describes the target of an audio conversion.
type AudioFormat struct {
	Container  string // "wav"
	SampleRate int    // Hz
	Channels   int
	BitDepth   int // bits per sample
}

// SpeechFormat is what the speech services expect: 16 kHz mono 16-bit PCM WAV.
var SpeechFormat = AudioFormat{Container: "wav", SampleRate: 16000, Channels: 1, BitDepth: 16}

// Transcoder converts an audio file into the requested format and returns
// the path of the converted file.
type Transcoder interface {
	Convert(ctx context.Context, inputPath string, format AudioFormat) (string, error)
}
