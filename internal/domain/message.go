package domain

import (
	"fmt"
	"strings"
)

// NewText returns an owned copy of s that is safe to hand to the engine,
// which consumes NUL-terminated text.
func NewText(s string) (string, error) {
	if i := strings.IndexByte(s, 0); i >= 0 {
		return "", fmt.Errorf("%w at offset %d", ErrNulByteInString, i)
	}
	return strings.Clone(s), nil
}

// Message is a single role-tagged turn.
type Message struct {
	Role    Role
	Content string
}

// NewMessage builds a message whose content has been validated by NewText.
func NewMessage(role Role, content string) (Message, error) {
	text, err := NewText(content)
	if err != nil {
		return Message{}, err
	}
	return Message{Role: role, Content: text}, nil
}
