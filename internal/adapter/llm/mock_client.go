package llm

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xiaot623/gogo/chatd/internal/domain"
	"github.com/xiaot623/gogo/chatd/internal/protocol"
)

// MockClient is a deterministic engine used in mock mode and in tests. It
// echoes the last user message.
type MockClient struct {
	// ChunkSize is the fragment size in runes for streaming.
	ChunkSize int
	// Delay is slept before each fragment.
	Delay time.Duration
	// Reply, when set, replaces the echoed reply.
	Reply string
}

// NewMockClient creates a new mock engine.
func NewMockClient() *MockClient {
	return &MockClient{ChunkSize: 10}
}

// Ensure MockClient implements Engine interface.
var _ Engine = (*MockClient)(nil)

// Generate returns a mock reply.
func (m *MockClient) Generate(ctx context.Context, prompt *Prompt) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, finish := m.reply(prompt)
	return &Generation{
		Model:            m.model(prompt),
		Text:             text,
		FinishReason:     finish,
		PromptTokens:     EstimateTokens(prompt.Text),
		CompletionTokens: EstimateTokens(text),
	}, nil
}

// GenerateStream simulates a streaming reply.
func (m *MockClient) GenerateStream(ctx context.Context, prompt *Prompt, callback FragmentCallback) (*Generation, error) {
	text, finish := m.reply(prompt)

	for _, chunk := range m.splitIntoChunks(text) {
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.Delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := callback(chunk); err != nil {
			return nil, err
		}
	}

	return &Generation{
		Model:            m.model(prompt),
		Text:             text,
		FinishReason:     finish,
		PromptTokens:     EstimateTokens(prompt.Text),
		CompletionTokens: EstimateTokens(text),
	}, nil
}

// ListModels returns a list of mock models.
func (m *MockClient) ListModels(ctx context.Context) ([]protocol.Model, error) {
	return []protocol.Model{
		{
			ID:      "mock-chat",
			Object:  protocol.ObjectModel,
			Created: time.Now().Unix(),
			OwnedBy: "mock",
		},
	}, nil
}

func (m *MockClient) model(prompt *Prompt) string {
	if prompt.Model == "" {
		return "mock-chat"
	}
	return prompt.Model
}

// reply builds the reply text, cut to MaxTokens when set.
func (m *MockClient) reply(prompt *Prompt) (string, string) {
	text := m.Reply
	if text == "" {
		text = m.generateMockResponse(prompt)
	}

	if max := prompt.Options.MaxTokens; max != nil && *max >= 0 && EstimateTokens(text) > *max {
		runes := []rune(text)
		for len(runes) > 0 && EstimateTokens(string(runes)) > *max {
			runes = runes[:len(runes)-1]
		}
		return string(runes), domain.FinishReasonLength
	}
	return text, domain.FinishReasonStop
}

// generateMockResponse generates a mock response based on the prompt.
func (m *MockClient) generateMockResponse(prompt *Prompt) string {
	// Get the last user message
	var lastUserMessage string
	if prompt.Conversation != nil {
		msgs := prompt.Conversation.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == domain.RoleUser {
				lastUserMessage = msgs[i].Content
				break
			}
		}
	}

	if lastUserMessage == "" {
		return "[MOCK] This is a mock response."
	}

	return fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(lastUserMessage, 100))
}

// splitIntoChunks splits s into fragments of ChunkSize runes.
func (m *MockClient) splitIntoChunks(s string) []string {
	size := m.ChunkSize
	if size <= 0 {
		size = 10
	}

	var chunks []string
	for len(s) > 0 {
		end, n := 0, 0
		for end < len(s) && n < size {
			_, w := utf8.DecodeRuneInString(s[end:])
			end += w
			n++
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}

// truncate truncates a string to the given number of runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
