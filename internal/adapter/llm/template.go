package llm

import (
	"strings"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// Prompt is what the engine consumes: the conversation plus its rendered
// text form.
type Prompt struct {
	Model        string
	Conversation *domain.Conversation
	Text         string
	Options      Options
}

// NewPrompt renders conv for the engine. The conversation is cloned so the
// caller may keep mutating its own copy.
func NewPrompt(model string, conv *domain.Conversation, opts Options) *Prompt {
	return &Prompt{
		Model:        model,
		Conversation: conv.Clone(),
		Text:         RenderPrompt(conv),
		Options:      opts,
	}
}

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"
)

// RenderPrompt renders conv in ChatML form, ending with an open assistant
// turn.
func RenderPrompt(conv *domain.Conversation) string {
	var sb strings.Builder
	for _, msg := range conv.Messages() {
		sb.WriteString(imStart)
		sb.WriteString(domain.RoleString(msg.Role))
		sb.WriteByte('\n')
		sb.WriteString(msg.Content)
		sb.WriteString(imEnd)
		sb.WriteByte('\n')
	}
	sb.WriteString(imStart)
	sb.WriteString(domain.RoleString(domain.RoleAssistant))
	sb.WriteByte('\n')
	return sb.String()
}

// PromptSize is the byte length of the rendered prompt.
func PromptSize(conv *domain.Conversation) int {
	return len(RenderPrompt(conv))
}

// EstimateTokens approximates a token count: about four ASCII characters
// per token, one token per non-ASCII rune.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}
