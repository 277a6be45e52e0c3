package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"yogabot/internal/domain"
)

const cliHelp = `Commands:
  /image <path> [question]  attach an image
  /voice <path> [note]      attach an audio recording
  /help                     show this message
  /quit                     exit`

// CLI implements domain.Channel for interactive terminal chat.
type CLI struct {
	bus       domain.MessageBus
	logger    *slog.Logger
	in        io.Reader
	out       io.Writer
	outMu     sync.Mutex
	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start runs the interactive REPL and blocks until context is cancelled
// or input ends.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound("cli", func(msg domain.OutboundMessage) {
		c.stopThinking()
		c.printf("\r\033[K\n--- Yoga Bot ---\n%s\n----------------\nYou> ", msg.Content)
	})

	c.printf("Yoga Bot CLI. Ask about yoga, or type /help. Type /quit to exit.\nYou> ")

	scanner := bufio.NewScanner(c.in)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return nil // EOF
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			c.printf("You> ")
			continue
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/help":
			c.printf("%s\nYou> ", cliHelp)
			continue
		}

		msg, err := parseCLILine(line)
		if err != nil {
			c.printf("%v\nYou> ", err)
			continue
		}

		c.startThinking()
		if err := c.bus.Publish(ctx, msg); err != nil {
			c.stopThinking()
			c.printf("\r\033[Kcould not send message: %v\nYou> ", err)
		}
	}
}

// parseCLILine turns one input line into a message. /image and /voice read
// the named file and prefix the remaining text with the matching keyword.
func parseCLILine(line string) (domain.InboundMessage, error) {
	msg := domain.InboundMessage{
		Channel:   "cli",
		ChatID:    "direct",
		SenderID:  "user",
		Text:      line,
		Timestamp: time.Now(),
	}

	var kind domain.AttachmentKind
	var keyword string
	switch {
	case strings.HasPrefix(line, "/image"):
		kind, keyword = domain.AttachmentImage, "image"
	case strings.HasPrefix(line, "/voice"):
		kind, keyword = domain.AttachmentAudio, "voice"
	default:
		return msg, nil
	}

	fields := strings.Fields(line)
	if fields[0] != "/"+keyword {
		return msg, nil
	}
	if len(fields) < 2 {
		return msg, fmt.Errorf("usage: /%s <path> [text]", keyword)
	}
	path := fields[1]
	data, err := os.ReadFile(path)
	if err != nil {
		return msg, fmt.Errorf("read %s: %w", path, err)
	}
	_, ct := attachmentKind("", data)

	msg.Text = strings.TrimSpace(keyword + " " + strings.Join(fields[2:], " "))
	msg.Attachments = []domain.Attachment{{
		Kind:        kind,
		ContentType: ct,
		Name:        filepath.Base(path),
		Data:        data,
	}}
	return msg, nil
}

func (c *CLI) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *CLI) startThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	stop := c.thinkStop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.printf("\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}()
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
}

// Stop is a no-op for CLI (we exit when Start returns).
func (c *CLI) Stop() error { return nil }

func (c *CLI) Send(_ context.Context, _ string, content string) error {
	c.printf("%s\n", content)
	return nil
}
