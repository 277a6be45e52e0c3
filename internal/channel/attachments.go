package channel

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"yogabot/internal/domain"
)

// attachmentKind maps a declared content type to an attachment kind,
// sniffing the bytes when the declaration is missing or generic. It also
// returns the content type that was settled on.
func attachmentKind(declared string, data []byte) (domain.AttachmentKind, string) {
	ct := declared
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		ct = mt
	}
	if k := kindFromType(ct); k != domain.AttachmentNone {
		return k, ct
	}
	if len(data) == 0 {
		return domain.AttachmentNone, ct
	}
	sniffed := mimetype.Detect(data)
	for m := sniffed; m != nil; m = m.Parent() {
		if k := kindFromType(m.String()); k != domain.AttachmentNone {
			return k, sniffed.String()
		}
	}
	return domain.AttachmentNone, sniffed.String()
}

func kindFromType(ct string) domain.AttachmentKind {
	switch {
	case strings.HasPrefix(ct, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(ct, "audio/"), ct == "application/ogg", ct == "video/ogg":
		return domain.AttachmentAudio
	default:
		return domain.AttachmentNone
	}
}

// download fetches url with an optional bearer token, refusing bodies
// larger than maxBytes.
func download(ctx context.Context, client *http.Client, url, bearer string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download %s: HTTP %d", url, resp.StatusCode)
	}
	if resp.ContentLength > maxBytes {
		return nil, "", fmt.Errorf("download %s: %d bytes exceeds limit of %d", url, resp.ContentLength, maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("download %s: body exceeds limit of %d bytes", url, maxBytes)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// withIntentKeyword gives an attachment-only message the keyword that routes
// it to the service for its first attachment.
func withIntentKeyword(msg *domain.InboundMessage) {
	if strings.TrimSpace(msg.Text) != "" || len(msg.Attachments) == 0 {
		return
	}
	switch msg.Attachments[0].Kind {
	case domain.AttachmentImage:
		msg.Text = "image"
	case domain.AttachmentAudio:
		msg.Text = "voice"
	}
}

// splitMessage cuts msg into chunks of at most maxLen bytes, preferring
// newline boundaries and never splitting a UTF-8 sequence.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		}
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		if cut == 0 {
			cut = maxLen
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
