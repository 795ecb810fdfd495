// Package domain defines the conversation model shared by every layer of chatd.
package domain

import "fmt"

// Role identifies the author of a message.
type Role uint8

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
)

// RoleTool is accepted on the wire but never stored in a Conversation.
const RoleTool = "tool"

// String returns the wire token for the role.
func (r Role) String() string {
	return RoleString(r)
}

// RoleString converts a role to its wire token.
func RoleString(r Role) string {
	switch r {
	case RoleSystem:
		return "system"
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// ParseRole converts a wire token to a role. Tokens outside
// system/user/assistant fail with ErrInvalidRole.
func ParseRole(token string) (Role, error) {
	switch token {
	case "system":
		return RoleSystem, nil
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidRole, token)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return []byte(RoleString(r)), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidRole, uint8(r))
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// EventType represents the type of a session event.
type EventType string

const (
	EventTypeLLMCallStarted  EventType = "llm_call_started"
	EventTypeLLMCallDone     EventType = "llm_call_done"
	EventTypeContextTrimmed  EventType = "context_trimmed"
	EventTypeSystemPromptSet EventType = "system_prompt_set"
	EventTypeCleared         EventType = "conversation_cleared"
	EventTypeExported        EventType = "conversation_exported"
	EventTypeImported        EventType = "conversation_imported"
)

// Finish reasons reported on the last choice of a completion.
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
)
