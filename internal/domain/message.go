package domain

import "time"

// AttachmentKind classifies the payload a user attached to a message.
type AttachmentKind string

const (
	AttachmentNone  AttachmentKind = "none"
	AttachmentImage AttachmentKind = "image"
	AttachmentAudio AttachmentKind = "audio"
)

type Attachment struct {
	Kind        AttachmentKind
	ContentType string
	Name        string
	Data        []byte
}

// Account identifies one side of a Bot Framework conversation.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ReplyRef carries what a transport needs to answer a specific inbound
// message. Channels that route by chat ID alone leave it nil.
type ReplyRef struct {
	ServiceURL     string
	ChannelID      string
	ConversationID string
	ActivityID     string
	Bot            Account
	User           Account
}

type InboundMessage struct {
	Channel       string
	ChatID        string
	SenderID      string
	Text          string
	Attachments   []Attachment
	Timestamp     time.Time
	CorrelationID string    // optional: set by transports that wait for their own reply
	Reply         *ReplyRef // optional: transport-specific reply addressing
}

// AttachmentKind returns the kind of the first attachment, or AttachmentNone.
func (m InboundMessage) AttachmentKind() AttachmentKind {
	if len(m.Attachments) == 0 {
		return AttachmentNone
	}
	return m.Attachments[0].Kind
}

// FirstAttachment returns the first attachment of the given kind.
func (m InboundMessage) FirstAttachment(kind AttachmentKind) (Attachment, bool) {
	for _, a := range m.Attachments {
		if a.Kind == kind {
			return a, true
		}
	}
	return Attachment{}, false
}

type OutboundMessage struct {
	Channel       string
	ChatID        string
	Content       string
	CorrelationID string
	Reply         *ReplyRef
}
