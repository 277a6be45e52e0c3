package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"yogabot/internal/agent"
	"yogabot/internal/bus"
	"yogabot/internal/config"
	"yogabot/internal/dispatch"
	"yogabot/internal/domain"
	"yogabot/internal/gateway"
	"yogabot/internal/history"
	"yogabot/internal/metrics"
	"yogabot/internal/transcode"
)

// app is the wired message engine shared by serve, chat and ask.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	bus        *bus.InMemoryBus
	events     *bus.EventBus
	dispatcher *dispatch.Dispatcher
	loop       *agent.Loop
	metrics    *metrics.Metrics // nil when disabled
	history    *history.Store   // nil when disabled

	detach []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logger,
		bus:    bus.New(100, logger),
		events: bus.NewEventBus(logger),
	}

	var observer gateway.Observer
	if cfg.Metrics.Enabled {
		a.metrics = metrics.New(nil)
		observer = a.metrics.ObserveGateway
		a.detach = append(a.detach, a.metrics.Subscribe(a.events))
	}

	set, err := gateway.NewSet(cfg, logger, observer)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	tc, err := transcode.New(transcode.Config{
		Backend:    cfg.Transcode.Backend,
		FFmpegPath: cfg.Transcode.FFmpegPath,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("transcode: %w", err)
	}

	if cfg.Dispatch.ScratchDir != "" {
		if err := os.MkdirAll(cfg.Dispatch.ScratchDir, 0o700); err != nil {
			return nil, fmt.Errorf("scratch dir: %w", err)
		}
	}

	a.dispatcher, err = dispatch.New(dispatch.Config{
		Completer:    set.Completer,
		Vision:       set.Vision,
		Speech:       set.Speech,
		Transcoder:   tc,
		SystemPrompt: cfg.Dispatch.SystemPrompt,
		MaxTokens:    cfg.Dispatch.MaxTokens,
		Temperature:  cfg.Dispatch.Temperature,
		VoiceFormat:  speechFormat(cfg),
		ScratchDir:   cfg.Dispatch.ScratchDir,
		SampleImage:  cfg.Dispatch.SampleImage,
		SampleVoice:  cfg.Dispatch.SampleVoice,
	})
	if err != nil {
		return nil, err
	}

	if cfg.History.Enabled {
		a.history, err = history.Open(cfg.History.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		if cfg.History.RetentionDays > 0 {
			n, err := a.history.Prune(ctx, time.Duration(cfg.History.RetentionDays)*24*time.Hour)
			if err != nil {
				logger.Warn("history prune failed", "err", err)
			} else if n > 0 {
				logger.Info("history pruned", "rows", n)
			}
		}
		a.detach = append(a.detach, a.history.Subscribe(a.events))
	}

	a.loop = agent.NewLoop(agent.LoopConfig{
		Dispatcher:     a.dispatcher,
		Bus:            a.bus,
		Events:         a.events,
		Logger:         logger,
		Concurrency:    cfg.General.MaxConcurrentMessages,
		MessageTimeout: time.Duration(cfg.General.MessageTimeoutSeconds) * time.Second,
		RateLimiter:    agent.NewRateLimiter(cfg.General.RateBurst, float64(cfg.General.RatePerMinute)),
	})
	return a, nil
}

func speechFormat(cfg *config.Config) domain.AudioFormat {
	return domain.AudioFormat{
		Container:  domain.SpeechFormat.Container,
		SampleRate: cfg.Transcode.SampleRate,
		Channels:   cfg.Transcode.Channels,
		BitDepth:   cfg.Transcode.BitDepth,
	}
}

func (a *app) Close() {
	for _, d := range a.detach {
		d()
	}
	a.bus.Close()
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("history close failed", "err", err)
		}
	}
}
