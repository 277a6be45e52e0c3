// Package dispatch turns one inbound chat message into one outbound reply:
// it classifies the message by keyword, shapes the prompt, calls the
// matching AI service and formats what comes back.
package dispatch

import "strings"

// Intent is the category of a user message. It decides which service is called.
type Intent int

const (
	TextQuery Intent = iota
	ImageQuery
	VoiceQuery
)

func (i Intent) String() string {
	switch i {
	case ImageQuery:
		return "image"
	case VoiceQuery:
		return "voice"
	default:
		return "text"
	}
}

type intentRule struct {
	keyword string
	intent  Intent
}

// intentRules is evaluated top to bottom; the first hit wins.
var intentRules = []intentRule{
	{keyword: "image", intent: ImageQuery},
	{keyword: "voice", intent: VoiceQuery},
}

// Classify returns the intent of a message text. Matching is a
// case-insensitive substring test; anything unmatched, including the empty
// string, is a TextQuery.
func Classify(text string) Intent {
	lower := strings.ToLower(text)
	for _, r := range intentRules {
		if strings.Contains(lower, r.keyword) {
			return r.intent
		}
	}
	return TextQuery
}
