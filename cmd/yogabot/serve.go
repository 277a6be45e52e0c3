package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"yogabot/internal/channel"
	"yogabot/internal/config"
	"yogabot/internal/domain"
	"yogabot/internal/gateway"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot (Bot Framework, webhook, Telegram and metrics)",
		Long:  "Starts the message loop, every enabled transport and the shared HTTP server. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})

	var channels []domain.Channel
	httpClient := gateway.SharedHTTPClient(time.Duration(cfg.Gateway.TimeoutSeconds) * time.Second)

	if cfg.BotFramework.Enabled {
		bf := channel.NewBotFramework(channel.BotFrameworkConfig{
			AppID:              cfg.BotFramework.AppID,
			AppPassword:        cfg.BotFramework.AppPassword,
			TokenURL:           cfg.BotFramework.TokenURL,
			OpenIDMetadataURL:  cfg.BotFramework.OpenIDMetadataURL,
			MaxAttachmentBytes: cfg.BotFramework.MaxAttachmentBytes,
			HTTPClient:         httpClient,
			Logger:             logger,
		})
		mux.Handle(cfg.Server.MessagesPath, bf.Handler())
		channels = append(channels, bf)
		logger.Info("bot framework channel enabled", "path", cfg.Server.MessagesPath, "auth", cfg.BotFramework.AppID != "")
	}

	if cfg.Channels.Webhook.Enabled {
		wh := channel.NewWebhook(channel.WebhookConfig{
			Secret:       cfg.Channels.Webhook.Secret,
			ReplyTimeout: time.Duration(cfg.Channels.Webhook.ReplyTimeoutSeconds) * time.Second,
			Logger:       logger,
		})
		mux.Handle(cfg.Server.AskPath, wh.Handler())
		channels = append(channels, wh)
		logger.Info("webhook channel enabled", "path", cfg.Server.AskPath, "signed", cfg.Channels.Webhook.Secret != "")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token != "" {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:      cfg.Channels.Telegram.Token,
			AllowFrom:  cfg.Channels.Telegram.AllowFrom,
			ParseMode:  cfg.Channels.Telegram.ParseMode,
			HTTPClient: httpClient,
			Logger:     logger,
		}))
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	if a.metrics != nil {
		mux.Handle(cfg.Server.MetricsPath, a.metrics.Handler())
		logger.Info("metrics enabled", "path", cfg.Server.MetricsPath)
	}

	if len(channels) == 0 {
		return errors.New("no transports enabled: enable botFramework, channels.webhook or channels.telegram")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.loop.Run(gctx)
		return nil
	})

	for _, ch := range channels {
		ch := ch
		g.Go(func() error {
			if err := ch.Start(gctx, a.bus); err != nil {
				return fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			return nil
		})
	}

	if needsHTTP(cfg) {
		srv := &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		g.Go(func() error {
			logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("yogabot started. Press Ctrl+C to stop.", "version", version)

	err = g.Wait()
	for _, ch := range channels {
		if serr := ch.Stop(); serr != nil {
			logger.Warn("channel stop failed", "channel", ch.Name(), "err", serr)
		}
	}
	logger.Info("shutdown complete")
	return err
}

func needsHTTP(cfg *config.Config) bool {
	return cfg.BotFramework.Enabled || cfg.Channels.Webhook.Enabled || cfg.Metrics.Enabled
}
