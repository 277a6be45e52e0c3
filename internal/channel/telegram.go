package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"yogabot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
	telegramMaxFileBytes   = 20 << 20 // Bot API download limit

	telegramStartText = "Hello! I'm the yoga bot.\n\n" +
		"Ask me anything about yoga poses, class plans or sequences.\n" +
		"Send a photo captioned with \"image\" and I'll describe it.\n" +
		"Send a voice note and I'll transcribe it.\n\n" +
		"/help shows this message again."
	telegramHelpText = "*Yoga bot help*\n\n" +
		"Mention *beginner*, *advanced*, *back pain* or *relax* to get advice for your level.\n" +
		"Photos and voice notes are recognised automatically; add a caption to ask about them."
)

// Telegram implements domain.Channel for Telegram Bot.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger

	fileURL func(fileID string) (string, error)
	fetch   func(ctx context.Context, url string) ([]byte, string, error)
}

type TelegramConfig struct {
	Token      string
	AllowFrom  []string // User IDs as strings
	ParseMode  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	t := &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
	client := cfg.HTTPClient
	t.fetch = func(ctx context.Context, url string) ([]byte, string, error) {
		return download(ctx, client, url, "", telegramMaxFileBytes)
	}
	return t
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.fileURL = bot.GetFileDirectURL
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		t.sendMessage(chatID, msg.Content)
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

// Stop is a no-op: polling stops when Start's context is cancelled, and
// calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) Send(ctx context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendMessage(id, content)
	return nil
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	userID := update.Message.From.ID
	chatID := update.Message.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", update.Message.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	if update.Message.IsCommand() {
		t.handleCommand(chatID, update.Message)
		return
	}

	msg, err := t.buildInbound(ctx, update.Message)
	if err != nil {
		t.logger.Warn("telegram attachment download failed", "chat_id", chatID, "err", err)
		t.sendMessage(chatID, "Sorry, I couldn't download your attachment. Please try again.")
		return
	}
	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(msg.Text),
		"attachment", msg.AttachmentKind(),
	)

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	if err := t.bus.Publish(ctx, msg); err != nil {
		t.logger.Error("telegram publish failed", "chat_id", chatID, "err", err)
		t.sendMessage(chatID, "Sorry, I'm overloaded right now. Please try again in a minute.")
	}
}

// buildInbound converts a Telegram message, downloading at most one
// attachment. A bare photo or voice note gets its kind as text so that it
// is dispatched to the matching service.
func (t *Telegram) buildInbound(ctx context.Context, m *tgbotapi.Message) (domain.InboundMessage, error) {
	msg := domain.InboundMessage{
		Channel:   "telegram",
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		Text:      strings.TrimSpace(m.Text),
		Timestamp: time.Unix(int64(m.Date), 0),
	}
	if msg.Text == "" {
		msg.Text = strings.TrimSpace(m.Caption)
	}

	fileID, name, declared, keyword := telegramFile(m)
	if fileID == "" {
		return msg, nil
	}

	url, err := t.fileURL(fileID)
	if err != nil {
		return msg, fmt.Errorf("resolve file %s: %w", fileID, err)
	}
	data, served, err := t.fetch(ctx, url)
	if err != nil {
		return msg, err
	}
	if declared == "" {
		declared = served
	}
	kind, ct := attachmentKind(declared, data)
	if kind == domain.AttachmentNone {
		return msg, nil
	}
	msg.Attachments = []domain.Attachment{{Kind: kind, ContentType: ct, Name: name, Data: data}}
	if msg.Text == "" {
		msg.Text = keyword
	}
	return msg, nil
}

// telegramFile picks the attachment of m: the largest photo size, a voice
// note, an audio file or a document.
func telegramFile(m *tgbotapi.Message) (fileID, name, contentType, keyword string) {
	switch {
	case len(m.Photo) > 0:
		best := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > best.Width*best.Height {
				best = p
			}
		}
		return best.FileID, "photo.jpg", "image/jpeg", "image"
	case m.Voice != nil:
		return m.Voice.FileID, "voice.ogg", m.Voice.MimeType, "voice"
	case m.Audio != nil:
		return m.Audio.FileID, m.Audio.FileName, m.Audio.MimeType, "voice"
	case m.Document != nil:
		kw := "image"
		if kindFromType(m.Document.MimeType) == domain.AttachmentAudio {
			kw = "voice"
		}
		return m.Document.FileID, m.Document.FileName, m.Document.MimeType, kw
	}
	return "", "", "", ""
}

func (t *Telegram) handleCommand(chatID int64, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		t.sendMessage(chatID, telegramStartText)
	case "help":
		t.sendMessage(chatID, telegramHelpText)
	default:
		t.sendMessage(chatID, "Unknown command. Type /help for available commands.")
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	for _, chunk := range splitMessage(text, telegramMaxMsgLen) {
		t.sendChunk(chatID, chunk)
	}
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Markdown is tried first; a parse error falls back to plain text.
func (t *Telegram) sendChunk(chatID int64, text string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && t.parseMode != "" {
			msg.ParseMode = t.parseMode
		}

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", t.parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
		}

		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
