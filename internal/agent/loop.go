package agent

import (
	"context"
	"log/slog"
	"time"

	"yogabot/internal/bus"
	"yogabot/internal/dispatch"
	"yogabot/internal/domain"
)

const (
	defaultConcurrency    = 3
	defaultMessageTimeout = 2 * time.Minute
)

// Dispatcher answers one inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg domain.InboundMessage) (dispatch.Result, error)
}

// Loop is the message engine: receive message → dispatch → reply on the
// originating channel. Every message is handled on its own; nothing is
// carried from one message to the next.
type Loop struct {
	dispatcher  Dispatcher
	bus         domain.MessageBus
	events      *bus.EventBus
	logger      *slog.Logger
	concurrency int
	timeout     time.Duration
	rateLimiter *RateLimiter
}

// LoopConfig holds all dependencies and tuning parameters for the loop.
type LoopConfig struct {
	Dispatcher     Dispatcher
	Bus            domain.MessageBus
	Events         *bus.EventBus // optional
	Logger         *slog.Logger
	Concurrency    int           // max parallel messages (default 3)
	MessageTimeout time.Duration // per-message deadline (default 2m)
	RateLimiter    *RateLimiter  // optional: throttles AI service usage
}

// NewLoop creates a new loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = defaultMessageTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		dispatcher:  cfg.Dispatcher,
		bus:         cfg.Bus,
		events:      cfg.Events,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		timeout:     cfg.MessageTimeout,
		rateLimiter: cfg.RateLimiter,
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
// It returns when ctx is done or the bus is closed, after in-flight messages
// have finished.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("message loop started", "concurrency", l.concurrency, "timeout", l.timeout)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	defer func() {
		for i := 0; i < cap(sem); i++ {
			sem <- struct{}{}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("message loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, message loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect dispatches msg synchronously and returns the reply text.
// Failures are rendered the same way as for bus messages; the raw error is
// returned alongside for callers that want it.
func (l *Loop) ProcessDirect(ctx context.Context, msg domain.InboundMessage) (string, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	res, err := l.handle(ctx, msg)
	if err != nil {
		return RenderError(res.Intent, err), err
	}
	return res.Text, nil
}

// processMessage handles a single inbound message and sends the response
// back through the message bus.
func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	reply := l.reply(ctx, msg)

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel:       msg.Channel,
		ChatID:        msg.ChatID,
		Content:       reply,
		CorrelationID: msg.CorrelationID,
		Reply:         msg.Reply,
	})
	l.emit(bus.Event{
		Type:          bus.EventMessageSent,
		Channel:       msg.Channel,
		ChatID:        msg.ChatID,
		CorrelationID: msg.CorrelationID,
		ReplyLen:      len(reply),
	})
}

func (l *Loop) reply(ctx context.Context, msg domain.InboundMessage) string {
	res, err := l.handle(ctx, msg)
	if err != nil {
		return RenderError(res.Intent, err)
	}
	return res.Text
}

// handle wraps one dispatch with the message deadline, throttling, logging
// and lifecycle events.
func (l *Loop) handle(ctx context.Context, msg domain.InboundMessage) (dispatch.Result, error) {
	start := time.Now()
	log := l.logger.With(
		"channel", msg.Channel,
		"chat_id", msg.ChatID,
	)
	if msg.CorrelationID != "" {
		log = log.With("correlation_id", msg.CorrelationID)
	}
	log.Info("processing message",
		"sender", msg.SenderID,
		"text_len", len(msg.Text),
		"attachments", len(msg.Attachments),
	)
	l.emit(bus.Event{
		Type:          bus.EventMessageReceived,
		Channel:       msg.Channel,
		ChatID:        msg.ChatID,
		SenderID:      msg.SenderID,
		CorrelationID: msg.CorrelationID,
	})

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	var (
		res dispatch.Result
		err error
	)
	if l.rateLimiter != nil {
		if werr := l.rateLimiter.Wait(ctx); werr != nil {
			res.Intent = dispatch.Classify(msg.Text)
			err = &RateLimitError{Err: werr}
		}
	}
	if err == nil {
		res, err = l.dispatcher.Dispatch(ctx, msg)
	}
	latency := time.Since(start)

	event := bus.Event{
		Channel:       msg.Channel,
		ChatID:        msg.ChatID,
		SenderID:      msg.SenderID,
		CorrelationID: msg.CorrelationID,
		Intent:        res.Intent.String(),
		Latency:       latency,
	}
	if err != nil {
		kind := ErrorKind(err)
		log.Error("dispatch failed",
			"intent", res.Intent,
			"kind", kind,
			"latency", latency,
			"error", err,
		)
		event.Type = bus.EventMessageFailed
		event.ErrorKind = kind
		event.Err = err
		l.emit(event)
		return res, err
	}

	log.Info("message dispatched",
		"intent", res.Intent,
		"tag", res.Tag,
		"latency", latency,
		"reply_len", len(res.Text),
	)
	event.Type = bus.EventMessageDispatched
	event.Tag = res.Tag.String()
	event.ReplyLen = len(res.Text)
	event.Recognized = res.Intent == dispatch.VoiceQuery && !res.RecognitionMiss
	l.emit(event)
	return res, nil
}

func (l *Loop) emit(e bus.Event) {
	if l.events == nil {
		return
	}
	e.Source = "agent"
	l.events.Emit(e)
}
