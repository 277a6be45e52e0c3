package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"yogabot/internal/domain"
)

const (
	botFrameworkMaxBody        = 1 << 20
	botFrameworkDefaultMaxFile = 20 << 20
)

// BotFrameworkConfig configures the Bot Framework channel. Without an
// AppID inbound tokens are not checked and replies are unauthenticated,
// which is what the Bot Framework Emulator expects.
type BotFrameworkConfig struct {
	AppID              string
	AppPassword        string
	TokenURL           string
	OpenIDMetadataURL  string
	MaxAttachmentBytes int64
	HTTPClient         *http.Client
	Logger             *slog.Logger
}

// Activity is the subset of a Bot Framework activity the bot reads and writes.
type Activity struct {
	Type         string               `json:"type" validate:"required"`
	ID           string               `json:"id,omitempty"`
	Timestamp    string               `json:"timestamp,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	From         domain.Account       `json:"from"`
	Recipient    domain.Account       `json:"recipient"`
	Conversation ConversationAccount  `json:"conversation"`
	Text         string               `json:"text,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Attachments  []ActivityAttachment `json:"attachments,omitempty" validate:"dive"`
}

type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

type ActivityAttachment struct {
	ContentType string `json:"contentType" validate:"required"`
	ContentURL  string `json:"contentUrl,omitempty" validate:"omitempty,url"`
	Name        string `json:"name,omitempty"`
}

// messageFields holds what a message activity must carry to be answered.
type messageFields struct {
	ServiceURL     string `validate:"required,url"`
	ConversationID string `validate:"required"`
	FromID         string `validate:"required"`
}

// BotFramework implements domain.Channel for the Bot Framework messaging
// endpoint. Activities are acknowledged with 202 and answered through the
// connector's reply-to-activity API.
type BotFramework struct {
	verifier *JWTVerifier // nil when auth is disabled
	tokens   *TokenSource // nil when auth is disabled
	client   *http.Client
	maxFile  int64
	validate *validator.Validate
	logger   *slog.Logger

	mu      sync.Mutex
	bus     domain.MessageBus
	ctx     context.Context
	refs    map[string]domain.ReplyRef // last reply reference per conversation
	closing bool                       // set before wg.Wait; no wg.Add after it
	wg      sync.WaitGroup
}

func NewBotFramework(cfg BotFrameworkConfig) *BotFramework {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.MaxAttachmentBytes <= 0 {
		cfg.MaxAttachmentBytes = botFrameworkDefaultMaxFile
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &BotFramework{
		client:   cfg.HTTPClient,
		maxFile:  cfg.MaxAttachmentBytes,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   cfg.Logger,
		ctx:      context.Background(),
		refs:     make(map[string]domain.ReplyRef),
	}
	if cfg.AppID != "" {
		b.verifier = NewJWTVerifier(cfg.AppID, cfg.OpenIDMetadataURL, cfg.HTTPClient)
		b.tokens = NewTokenSource(cfg.AppID, cfg.AppPassword, cfg.TokenURL, cfg.HTTPClient)
	}
	return b
}

func (b *BotFramework) Name() string { return "botframework" }

// Handler returns the messaging endpoint handler for the shared server.
func (b *BotFramework) Handler() http.Handler { return http.HandlerFunc(b.handleActivity) }

// Start attaches the channel to the bus and blocks until ctx is cancelled,
// then waits for in-flight activities.
func (b *BotFramework) Start(ctx context.Context, bus domain.MessageBus) error {
	b.attach(ctx, bus)
	b.logger.Info("bot framework channel ready", "auth", b.verifier != nil)

	<-ctx.Done()
	b.mu.Lock()
	b.closing = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *BotFramework) attach(ctx context.Context, bus domain.MessageBus) {
	b.mu.Lock()
	b.bus = bus
	b.ctx = ctx
	b.mu.Unlock()

	bus.OnOutbound("botframework", func(msg domain.OutboundMessage) {
		if err := b.reply(ctx, msg); err != nil {
			b.logger.Error("bot framework reply failed",
				"conversation", msg.ChatID,
				"correlation_id", msg.CorrelationID,
				"err", err,
			)
		}
	})
}

func (b *BotFramework) Stop() error { return nil }

// Send posts a proactive message to a conversation the bot has seen.
func (b *BotFramework) Send(ctx context.Context, chatID string, content string) error {
	b.mu.Lock()
	ref, ok := b.refs[chatID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("botframework: unknown conversation %q", chatID)
	}
	ref.ActivityID = ""
	return b.post(ctx, ref, content)
}

func (b *BotFramework) handleActivity(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		http.Error(rw, "Unsupported Media Type", http.StatusUnsupportedMediaType)
		return
	}
	if b.verifier != nil {
		if err := b.verifier.Verify(r.Context(), r.Header.Get("Authorization")); err != nil {
			b.logger.Warn("bot framework auth rejected", "err", err)
			http.Error(rw, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, botFrameworkMaxBody))
	if err != nil {
		http.Error(rw, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var act Activity
	if err := json.Unmarshal(body, &act); err != nil {
		http.Error(rw, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := b.validateActivity(act); err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	bus, ctx := b.bus, b.ctx
	ready := bus != nil && !b.closing
	if ready && act.Type == "message" {
		b.wg.Add(1)
	}
	b.mu.Unlock()
	if !ready {
		http.Error(rw, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	rw.WriteHeader(http.StatusAccepted)

	if act.Type != "message" {
		b.logger.Debug("bot framework activity ignored", "type", act.Type)
		return
	}

	go func() {
		defer b.wg.Done()
		b.accept(ctx, bus, act)
	}()
}

func (b *BotFramework) validateActivity(act Activity) error {
	if err := b.validate.Struct(act); err != nil {
		return fmt.Errorf("invalid activity: %w", err)
	}
	if act.Type != "message" {
		return nil
	}
	if err := b.validate.Struct(messageFields{
		ServiceURL:     act.ServiceURL,
		ConversationID: act.Conversation.ID,
		FromID:         act.From.ID,
	}); err != nil {
		return fmt.Errorf("invalid message activity: %w", err)
	}
	return nil
}

// accept downloads the activity's attachments and publishes it. Download
// failures are answered directly since the message never reaches the bus.
func (b *BotFramework) accept(ctx context.Context, bus domain.MessageBus, act Activity) {
	ref := domain.ReplyRef{
		ServiceURL:     act.ServiceURL,
		ChannelID:      act.ChannelID,
		ConversationID: act.Conversation.ID,
		ActivityID:     act.ID,
		Bot:            act.Recipient,
		User:           act.From,
	}
	b.mu.Lock()
	b.refs[ref.ConversationID] = ref
	b.mu.Unlock()

	msg := domain.InboundMessage{
		Channel:   "botframework",
		ChatID:    act.Conversation.ID,
		SenderID:  act.From.ID,
		Text:      act.Text,
		Timestamp: parseTimestamp(act.Timestamp),
		Reply:     &ref,
	}

	atts, err := b.fetchAttachments(ctx, act.Attachments)
	if err != nil {
		b.logger.Warn("bot framework attachment download failed", "conversation", ref.ConversationID, "err", err)
		if err := b.post(ctx, ref, "Sorry, I couldn't download your attachment. Please try again."); err != nil {
			b.logger.Error("bot framework reply failed", "err", err)
		}
		return
	}
	msg.Attachments = atts
	withIntentKeyword(&msg)

	b.logger.Info("bot framework message received",
		"channel_id", act.ChannelID,
		"conversation", ref.ConversationID,
		"text_len", len(act.Text),
		"attachments", len(atts),
	)

	if err := bus.Publish(ctx, msg); err != nil {
		b.logger.Error("bot framework publish failed", "conversation", ref.ConversationID, "err", err)
	}
}

func (b *BotFramework) fetchAttachments(ctx context.Context, in []ActivityAttachment) ([]domain.Attachment, error) {
	var out []domain.Attachment
	for _, a := range in {
		if a.ContentURL == "" {
			continue
		}
		if kindFromType(a.ContentType) == domain.AttachmentNone && a.ContentType != "application/octet-stream" {
			continue
		}
		bearer, err := b.bearerFor(ctx, a.ContentURL)
		if err != nil {
			return nil, err
		}
		data, served, err := download(ctx, b.client, a.ContentURL, bearer, b.maxFile)
		if err != nil {
			return nil, err
		}
		declared := a.ContentType
		if declared == "application/octet-stream" && served != "" {
			declared = served
		}
		kind, ct := attachmentKind(declared, data)
		if kind == domain.AttachmentNone {
			continue
		}
		out = append(out, domain.Attachment{Kind: kind, ContentType: ct, Name: a.Name, Data: data})
	}
	return out, nil
}

// bearerFor returns a connector token for attachment URLs hosted by the
// Bot Connector itself; third-party URLs are fetched anonymously.
func (b *BotFramework) bearerFor(ctx context.Context, rawURL string) (string, error) {
	if b.tokens == nil {
		return "", nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if !isConnectorHost(u.Hostname()) {
		return "", nil
	}
	return b.tokens.Token(ctx)
}

// connectorDomains host Bot Connector attachment content.
var connectorDomains = []string{"botframework.com", "trafficmanager.net"}

// isConnectorHost reports whether host is one of connectorDomains or a
// subdomain of one.
func isConnectorHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range connectorDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// reply answers an outbound message, using the reference captured from the
// inbound activity or the last one seen for the conversation.
func (b *BotFramework) reply(ctx context.Context, msg domain.OutboundMessage) error {
	ref := msg.Reply
	if ref == nil {
		b.mu.Lock()
		r, ok := b.refs[msg.ChatID]
		b.mu.Unlock()
		if !ok {
			return fmt.Errorf("no reply reference for conversation %q", msg.ChatID)
		}
		ref = &r
	}
	return b.post(ctx, *ref, msg.Content)
}

func (b *BotFramework) post(ctx context.Context, ref domain.ReplyRef, text string) error {
	endpoint := strings.TrimSuffix(ref.ServiceURL, "/") + "/v3/conversations/" + url.PathEscape(ref.ConversationID) + "/activities"
	if ref.ActivityID != "" {
		endpoint += "/" + url.PathEscape(ref.ActivityID)
	}

	out := Activity{
		Type:         "message",
		ChannelID:    ref.ChannelID,
		From:         ref.Bot,
		Recipient:    ref.User,
		Conversation: ConversationAccount{ID: ref.ConversationID},
		Text:         text,
		ReplyToID:    ref.ActivityID,
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.tokens != nil {
		tok, err := b.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("connector token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("connector replied HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}

func parseTimestamp(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	return time.Now()
}
