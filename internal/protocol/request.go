package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// ParseRequest decodes a chat completion request body. Unknown fields are
// ignored. Syntax errors, type mismatches and an absent messages field fail
// with domain.ErrInvalidJSON; an empty messages array fails with
// domain.ErrMissingMessages. The caller owns the returned request.
func ParseRequest(body []byte) (*ChatCompletionRequest, error) {
	var req ChatCompletionRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidJSON, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: unexpected data after request object", domain.ErrInvalidJSON)
	}
	if req.Messages == nil {
		return nil, fmt.Errorf("%w: messages is required", domain.ErrInvalidJSON)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", domain.ErrMissingMessages)
	}
	return &req, nil
}

// Conversation converts the request messages into a conversation. Tool
// messages are recognised but not kept; any other unknown role fails with
// domain.ErrInvalidRole.
func (r *ChatCompletionRequest) Conversation() (*domain.Conversation, error) {
	conv := domain.NewConversation()
	for i, m := range r.Messages {
		if m.Role == domain.RoleTool {
			continue
		}
		role, err := domain.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		msg, err := domain.NewMessage(role, string(m.Content))
		if err != nil {
			return nil, fmt.Errorf("messages[%d]: %w", i, err)
		}
		conv.Append(msg)
	}
	return conv, nil
}

// MessagesFromConversation converts a conversation to wire messages.
func MessagesFromConversation(conv *domain.Conversation) []ChatMessage {
	out := make([]ChatMessage, 0, conv.Len())
	for _, msg := range conv.Messages() {
		out = append(out, ChatMessage{
			Role:    domain.RoleString(msg.Role),
			Content: MessageContent(msg.Content),
		})
	}
	return out
}
