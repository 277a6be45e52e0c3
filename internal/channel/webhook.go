package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"yogabot/internal/domain"
)

const (
	webhookDefaultTimeout = 60 * time.Second
	webhookMaxBody        = 32 << 20
)

// WebhookConfig configures the webhook channel.
type WebhookConfig struct {
	Secret       string        // HMAC secret for verifying request signatures
	ReplyTimeout time.Duration // how long a request waits for its reply (default: 60s)
	Logger       *slog.Logger
}

// Webhook implements a synchronous ask endpoint: each POST publishes one
// message and blocks until the matching reply is sent back on the bus.
type Webhook struct {
	secret  string
	timeout time.Duration
	bus     domain.MessageBus
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]chan string
}

// WebhookPayload is the expected JSON body for ask requests. Media is
// carried inline as base64.
type WebhookPayload struct {
	ChatID      string `json:"chat_id"`
	UserID      string `json:"user_id"`
	Text        string `json:"text"`
	ImageBase64 string `json:"image_base64,omitempty"`
	AudioBase64 string `json:"audio_base64,omitempty"`
	AudioName   string `json:"audio_name,omitempty"`
}

// WebhookReply is the JSON body returned for a completed request.
type WebhookReply struct {
	Reply         string `json:"reply"`
	CorrelationID string `json:"correlation_id"`
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = webhookDefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		secret:  cfg.Secret,
		timeout: cfg.ReplyTimeout,
		logger:  cfg.Logger,
		pending: make(map[string]chan string),
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Handler returns the HTTP handler to mount on the shared server.
func (w *Webhook) Handler() http.Handler { return http.HandlerFunc(w.handleWebhook) }

// Start attaches the webhook to the bus and blocks until ctx is cancelled.
func (w *Webhook) Start(ctx context.Context, bus domain.MessageBus) error {
	w.attach(bus)
	w.logger.Info("webhook channel ready")

	<-ctx.Done()
	return nil
}

func (w *Webhook) attach(bus domain.MessageBus) {
	w.mu.Lock()
	w.bus = bus
	w.mu.Unlock()
	bus.OnOutbound("webhook", w.deliver)
}

func (w *Webhook) Stop() error { return nil }

// Send is unsupported: webhook replies only go to a waiting request.
func (w *Webhook) Send(_ context.Context, chatID string, _ string) error {
	return errors.New("webhook: replies are only delivered to pending requests (chat " + chatID + ")")
}

func (w *Webhook) deliver(msg domain.OutboundMessage) {
	w.mu.Lock()
	ch, ok := w.pending[msg.CorrelationID]
	w.mu.Unlock()
	if !ok {
		w.logger.Debug("webhook reply without waiter", "correlation_id", msg.CorrelationID)
		return
	}
	select {
	case ch <- msg.Content:
	default:
	}
}

func (w *Webhook) handleWebhook(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if w.secret != "" {
		sig := r.Header.Get("X-Signature-256")
		if sig == "" {
			http.Error(rw, "Missing signature", http.StatusUnauthorized)
			return
		}
		if !verifyHMAC(body, w.secret, sig) {
			http.Error(rw, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}

	msg, err := payload.inbound()
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	w.mu.Lock()
	bus := w.bus
	w.mu.Unlock()
	if bus == nil {
		http.Error(rw, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	msg.CorrelationID = uuid.NewString()
	replyCh := make(chan string, 1)
	w.mu.Lock()
	w.pending[msg.CorrelationID] = replyCh
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, msg.CorrelationID)
		w.mu.Unlock()
	}()

	w.logger.Info("webhook received",
		"chat_id", msg.ChatID,
		"user_id", msg.SenderID,
		"text_len", len(msg.Text),
		"attachments", len(msg.Attachments),
		"correlation_id", msg.CorrelationID,
	)

	if err := bus.Publish(r.Context(), msg); err != nil {
		w.logger.Warn("webhook publish failed", "err", err)
		http.Error(rw, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	timer := time.NewTimer(w.timeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(WebhookReply{Reply: reply, CorrelationID: msg.CorrelationID})
	case <-timer.C:
		http.Error(rw, "Gateway Timeout", http.StatusGatewayTimeout)
	case <-r.Context().Done():
	}
}

func (p WebhookPayload) inbound() (domain.InboundMessage, error) {
	msg := domain.InboundMessage{
		Channel:   "webhook",
		ChatID:    p.ChatID,
		SenderID:  p.UserID,
		Text:      p.Text,
		Timestamp: time.Now(),
	}
	if msg.ChatID == "" {
		msg.ChatID = "webhook-default"
	}
	if msg.SenderID == "" {
		msg.SenderID = "webhook"
	}

	if p.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(p.ImageBase64)
		if err != nil {
			return msg, errors.New("image_base64 is not valid base64")
		}
		_, ct := attachmentKind("", data)
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Kind: domain.AttachmentImage, ContentType: ct, Name: "image", Data: data,
		})
	}
	if p.AudioBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(p.AudioBase64)
		if err != nil {
			return msg, errors.New("audio_base64 is not valid base64")
		}
		name := p.AudioName
		if name == "" {
			name = "voice"
		}
		_, ct := attachmentKind("", data)
		msg.Attachments = append(msg.Attachments, domain.Attachment{
			Kind: domain.AttachmentAudio, ContentType: ct, Name: name, Data: data,
		})
	}

	if strings.TrimSpace(msg.Text) == "" && len(msg.Attachments) == 0 {
		return msg, errors.New("text is required")
	}
	withIntentKeyword(&msg)
	return msg, nil
}

// verifyHMAC verifies the HMAC-SHA256 signature of the body.
func verifyHMAC(body []byte, secret, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
