package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

func TestRenderPrompt(t *testing.T) {
	conv := domain.NewConversation()
	require.NoError(t, conv.SetOrPrependSystemPrompt("sys"))
	conv.Append(domain.Message{Role: domain.RoleUser, Content: "hi"})

	want := "<|im_start|>system\nsys<|im_end|>\n<|im_start|>user\nhi<|im_end|>\n<|im_start|>assistant\n"
	assert.Equal(t, want, RenderPrompt(conv))
	assert.Equal(t, len(want), PromptSize(conv))
}

func TestNewPromptClones(t *testing.T) {
	conv := domain.NewConversation(domain.Message{Role: domain.RoleUser, Content: "hi"})
	p := NewPrompt("m", conv, Options{})
	conv.Append(domain.Message{Role: domain.RoleAssistant, Content: "later"})
	assert.Equal(t, 1, p.Conversation.Len())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 2, EstimateTokens("日本"))
}

func TestTrimToBudget(t *testing.T) {
	conv := domain.NewConversation()
	require.NoError(t, conv.SetOrPrependSystemPrompt("system prompt"))
	for i := 0; i < 10; i++ {
		conv.Append(domain.Message{Role: domain.RoleUser, Content: strings.Repeat("x", 100)})
	}

	budget := PromptSize(conv) / 2
	dropped := TrimToBudget(conv, budget, PromptSize)
	assert.Positive(t, dropped)
	assert.LessOrEqual(t, PromptSize(conv), budget)
	assert.True(t, conv.HasSystemPrompt())

	// A budget below the system prompt alone stops at the system message
	// and the newest turn.
	TrimToBudget(conv, 1, PromptSize)
	assert.Equal(t, 2, conv.Len())
	assert.True(t, conv.HasSystemPrompt())
	assert.Equal(t, 0, TrimToBudget(conv, 1, PromptSize))

	assert.Equal(t, 0, TrimToBudget(conv, 0, PromptSize))
}

func TestTrimToMessageCount(t *testing.T) {
	conv := domain.NewConversation()
	require.NoError(t, conv.SetOrPrependSystemPrompt("s"))
	for i := 0; i < 5; i++ {
		conv.Append(domain.Message{Role: domain.RoleUser, Content: "m"})
	}
	assert.Equal(t, 3, TrimToMessageCount(conv, 3))
	assert.Equal(t, 3, conv.Len())
	assert.Equal(t, 0, TrimToMessageCount(conv, 0))

	assert.Equal(t, 1, TrimToMessageCount(conv, 1))
	assert.Equal(t, 2, conv.Len())
}

func TestTrimKeepsNewestMessage(t *testing.T) {
	conv := domain.NewConversation()
	require.NoError(t, conv.SetOrPrependSystemPrompt("sys"))
	conv.Append(domain.Message{Role: domain.RoleUser, Content: "old"})
	conv.Append(domain.Message{Role: domain.RoleAssistant, Content: "reply"})
	huge := strings.Repeat("x", 500)
	conv.Append(domain.Message{Role: domain.RoleUser, Content: huge})

	assert.Equal(t, 2, TrimToBudget(conv, 100, PromptSize))
	require.Equal(t, 2, conv.Len())
	assert.Equal(t, domain.RoleSystem, conv.At(0).Role)
	assert.Equal(t, huge, conv.At(1).Content)

	// Without a system prompt the lone newest message stays too.
	single := domain.NewConversation(domain.Message{Role: domain.RoleUser, Content: huge})
	assert.Equal(t, 0, TrimToBudget(single, 1, PromptSize))
	assert.Equal(t, 1, single.Len())
}
