package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"yogabot/internal/channel"
	"yogabot/internal/dispatch"
	"yogabot/internal/domain"
)

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat in the terminal",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
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

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	go a.loop.Run(loopCtx)

	cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger})
	return cliCh.Start(ctx, a.bus)
}

func askCmd() *cobra.Command {
	var imagePath, voicePath string
	cmd := &cobra.Command{
		Use:   `ask "<text>"`,
		Short: "Dispatch one message and print the reply",
		Long: "Sends a single message through the dispatcher, exactly as a transport would.\n" +
			"The text decides the intent: include \"image\" or \"voice\" to use an attachment.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			msg := domain.InboundMessage{
				Channel:   "cli",
				ChatID:    "ask",
				SenderID:  "user",
				Text:      strings.Join(args, " "),
				Timestamp: time.Now(),
			}
			if imagePath != "" {
				att, err := fileAttachment(imagePath, domain.AttachmentImage)
				if err != nil {
					return err
				}
				msg.Attachments = append(msg.Attachments, att)
			}
			if voicePath != "" {
				att, err := fileAttachment(voicePath, domain.AttachmentAudio)
				if err != nil {
					return err
				}
				msg.Attachments = append(msg.Attachments, att)
			}

			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.loop.ProcessDirect(ctx, msg)
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return err
		},
	}
	cmd.Flags().StringVar(&imagePath, "image", "", "image file to attach")
	cmd.Flags().StringVar(&voicePath, "voice", "", "audio file to attach")
	return cmd
}

func fileAttachment(path string, kind domain.AttachmentKind) (domain.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("read %s: %w", path, err)
	}
	return domain.Attachment{
		Kind:        kind,
		ContentType: mimetype.Detect(data).String(),
		Name:        filepath.Base(path),
		Data:        data,
	}, nil
}

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   `classify "<text>"`,
		Short: "Show how a message would be routed, without calling any service",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			intent := dispatch.Classify(text)
			fmt.Fprintf(out, "intent: %s\n", intent)
			if intent != dispatch.TextQuery {
				return
			}
			aug := dispatch.Augment(text)
			fmt.Fprintf(out, "tag:    %s\n", aug.Tag)
			fmt.Fprintf(out, "prompt: %s\n", aug.Prompt())
		},
	}
}
