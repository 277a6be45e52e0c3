package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"

	"yogabot/internal/domain"
)

const (
	DefaultSystemPrompt = "You are a yoga bot providing recommendations to the user on yoga poses, " +
		"customised class plans, environment-based pose suggestions, and yoga sequences " +
		"tailored to the user's needs."
	DefaultMaxTokens   = 200
	DefaultTemperature = 0.7

	// CouldNotUnderstand is the reply for audio the speech service could not recognise.
	CouldNotUnderstand = "Could not understand"
)

// Config holds the collaborators and fixed parameters of a Dispatcher.
type Config struct {
	Completer  domain.TextCompleter
	Vision     domain.ImageAnalyzer
	Speech     domain.SpeechTranscriber
	Transcoder domain.Transcoder

	SystemPrompt string  // default DefaultSystemPrompt
	MaxTokens    int     // default DefaultMaxTokens
	Temperature  float64 // passed through as given

	// VoiceFormat is the conversion target before transcription (default domain.SpeechFormat).
	VoiceFormat domain.AudioFormat
	// ScratchDir holds per-message audio files; empty means os.TempDir().
	ScratchDir string

	// SampleImage and SampleVoice are used when an image or voice query has
	// no attachment. Empty means ErrMissingAttachment.
	SampleImage string
	SampleVoice string
}

// Result is the reply to one message plus what produced it.
type Result struct {
	Intent          Intent
	Tag             ContextTag
	Text            string
	RecognitionMiss bool
}

// Dispatcher routes one message to one AI service. It keeps no state
// between calls and is safe for concurrent use.
type Dispatcher struct {
	completer  domain.TextCompleter
	vision     domain.ImageAnalyzer
	speech     domain.SpeechTranscriber
	transcoder domain.Transcoder

	systemPrompt string
	maxTokens    int
	temperature  float64
	voiceFormat  domain.AudioFormat
	scratchDir   string
	sampleImage  string
	sampleVoice  string
}

// New validates cfg and builds a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	var missing []string
	if cfg.Completer == nil {
		missing = append(missing, "completer")
	}
	if cfg.Vision == nil {
		missing = append(missing, "vision")
	}
	if cfg.Speech == nil {
		missing = append(missing, "speech")
	}
	if cfg.Transcoder == nil {
		missing = append(missing, "transcoder")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("dispatch: missing collaborators: %v", missing)
	}

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.VoiceFormat == (domain.AudioFormat{}) {
		cfg.VoiceFormat = domain.SpeechFormat
	}

	return &Dispatcher{
		completer:    cfg.Completer,
		vision:       cfg.Vision,
		speech:       cfg.Speech,
		transcoder:   cfg.Transcoder,
		systemPrompt: cfg.SystemPrompt,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		voiceFormat:  cfg.VoiceFormat,
		scratchDir:   cfg.ScratchDir,
		sampleImage:  cfg.SampleImage,
		sampleVoice:  cfg.SampleVoice,
	}, nil
}

// Dispatch classifies msg, calls the matching service and formats the
// reply. Service and transcoding failures are returned as *GatewayError and
// *TranscodeError; an unrecognised recording is not an error and yields
// CouldNotUnderstand.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) (Result, error) {
	intent := Classify(msg.Text)
	res := Result{Intent: intent}

	var err error
	switch intent {
	case ImageQuery:
		res.Text, err = d.dispatchImage(ctx, msg)
	case VoiceQuery:
		res.Text, res.RecognitionMiss, err = d.dispatchVoice(ctx, msg)
	default:
		aug := Augment(msg.Text)
		res.Tag = aug.Tag
		res.Text, err = d.dispatchText(ctx, aug)
	}
	return res, err
}

func (d *Dispatcher) dispatchText(ctx context.Context, aug AugmentedPrompt) (string, error) {
	reply, err := d.completer.CompleteText(ctx, domain.CompletionRequest{
		SystemPrompt: d.systemPrompt,
		UserPrompt:   aug.Prompt(),
		MaxTokens:    d.maxTokens,
		Temperature:  d.temperature,
	})
	if err != nil {
		return "", &GatewayError{Service: ServiceCompletion, Err: err}
	}
	return reply, nil
}

func (d *Dispatcher) dispatchImage(ctx context.Context, msg domain.InboundMessage) (string, error) {
	img, err := d.attachment(msg, domain.AttachmentImage, d.sampleImage)
	if err != nil {
		return "", fmt.Errorf("%s query: %w", ImageQuery, err)
	}
	analysis, err := d.vision.AnalyzeImage(ctx, img.Data)
	if err != nil {
		return "", &GatewayError{Service: ServiceVision, Err: err}
	}
	return FormatImageAnalysis(analysis), nil
}

func (d *Dispatcher) dispatchVoice(ctx context.Context, msg domain.InboundMessage) (string, bool, error) {
	audio, err := d.attachment(msg, domain.AttachmentAudio, d.sampleVoice)
	if err != nil {
		return "", false, fmt.Errorf("%s query: %w", VoiceQuery, err)
	}

	inPath, err := d.writeScratch(audio.Data)
	if err != nil {
		return "", false, &TranscodeError{Input: audio.Name, Err: err}
	}
	defer os.Remove(inPath)

	wavPath, err := d.transcoder.Convert(ctx, inPath, d.voiceFormat)
	if err != nil {
		return "", false, &TranscodeError{Input: audio.Name, Err: err}
	}
	defer os.Remove(wavPath)

	tr, err := d.speech.Transcribe(ctx, wavPath)
	if err != nil {
		return "", false, &GatewayError{Service: ServiceSpeech, Err: err}
	}
	if !tr.Recognized {
		return CouldNotUnderstand, true, nil
	}
	return tr.Text, false, nil
}

// attachment returns the first attachment of kind, falling back to the
// sample file when one is configured.
func (d *Dispatcher) attachment(msg domain.InboundMessage, kind domain.AttachmentKind, sample string) (domain.Attachment, error) {
	if a, ok := msg.FirstAttachment(kind); ok && len(a.Data) > 0 {
		return a, nil
	}
	if sample == "" {
		return domain.Attachment{}, ErrMissingAttachment
	}
	data, err := os.ReadFile(sample)
	if err != nil {
		return domain.Attachment{}, errors.Join(ErrMissingAttachment, fmt.Errorf("read sample: %w", err))
	}
	return domain.Attachment{Kind: kind, Name: sample, Data: data}, nil
}

// writeScratch stores audio bytes under a name whose extension matches the
// sniffed container so the transcoder can pick a decoder.
func (d *Dispatcher) writeScratch(data []byte) (string, error) {
	ext := mimetype.Detect(data).Extension()
	f, err := os.CreateTemp(d.scratchDir, "voice-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return f.Name(), nil
}
