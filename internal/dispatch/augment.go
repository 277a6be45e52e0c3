package dispatch

import (
	"strings"

	"github.com/samber/lo"
)

// ContextTag records which audience hint, if any, was added to a text prompt.
type ContextTag int

const (
	TagNone ContextTag = iota
	TagBeginner
	TagAdvanced
	TagBackPainOrRelax
)

func (t ContextTag) String() string {
	switch t {
	case TagBeginner:
		return "beginner"
	case TagAdvanced:
		return "advanced"
	case TagBackPainOrRelax:
		return "backpain_or_relax"
	default:
		return "none"
	}
}

type augmentRule struct {
	keywords []string
	tag      ContextTag
	prefix   string
}

var augmentRules = []augmentRule{
	{
		keywords: []string{"beginner"},
		tag:      TagBeginner,
		prefix:   "The user is a beginner. Recommend simple, low-impact poses.",
	},
	{
		keywords: []string{"advanced", "intense"},
		tag:      TagAdvanced,
		prefix:   "The user is advanced. Suggest challenging sequences.",
	},
	{
		keywords: []string{"backpain", "relax"},
		tag:      TagBackPainOrRelax,
		prefix:   "The user seeks relief from back pain or relaxation.",
	},
}

// AugmentedPrompt is a user query plus the audience hint chosen for it.
type AugmentedPrompt struct {
	OriginalText string
	Tag          ContextTag
}

// Prefix returns the instruction sentence for the tag, or "" for TagNone.
func (p AugmentedPrompt) Prefix() string {
	for _, r := range augmentRules {
		if r.tag == p.Tag {
			return r.prefix
		}
	}
	return ""
}

// Prompt is the user message sent to the completion service.
func (p AugmentedPrompt) Prompt() string {
	query := "Query: " + p.OriginalText
	if prefix := p.Prefix(); prefix != "" {
		return prefix + " " + query
	}
	return query
}

// Augment picks the first matching audience hint for text.
func Augment(text string) AugmentedPrompt {
	lower := strings.ToLower(text)
	for _, r := range augmentRules {
		if lo.SomeBy(r.keywords, func(k string) bool { return strings.Contains(lower, k) }) {
			return AugmentedPrompt{OriginalText: text, Tag: r.tag}
		}
	}
	return AugmentedPrompt{OriginalText: text, Tag: TagNone}
}
