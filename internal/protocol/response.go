package protocol

import (
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/gogo/chatd/internal/domain"
)

// now is replaced in tests.
var now = time.Now

// NewCompletionID returns a fresh completion id.
func NewCompletionID() string {
	return "chatcmpl-" + uuid.New().String()
}

// BuildResponse constructs a single-choice, non-streaming response.
func BuildResponse(id, model string, role domain.Role, content, finishReason string, usage Usage) *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: now().Unix(),
		Model:   model,
		Choices: []Choice{
			{
				Index: 0,
				Message: ResponseMessage{
					Role:    domain.RoleString(role),
					Content: content,
				},
				FinishReason: finishReason,
			},
		},
		Usage: usage,
	}
}
