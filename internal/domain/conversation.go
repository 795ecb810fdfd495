package domain

// Conversation is the ordered history of a single session. It is not safe
// for concurrent use; the owning session serializes access to it.
//
// If a system message is placed with SetOrPrependSystemPrompt it is unique
// and sits at index 0. Append does not police that invariant.
type Conversation struct {
	messages []Message
}

// NewConversation returns a conversation holding msgs in order.
func NewConversation(msgs ...Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, msgs...)
	return c
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// At returns the message at index i.
func (c *Conversation) At(i int) Message {
	return c.messages[i]
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Last returns the newest message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Append adds msg at the end. A second system message is allowed here;
// only SetOrPrependSystemPrompt maintains the leading-system invariant.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// HasSystemPrompt reports whether index 0 holds a system message.
func (c *Conversation) HasSystemPrompt() bool {
	return len(c.messages) > 0 && c.messages[0].Role == RoleSystem
}

// SystemPrompt returns the content of the leading system message.
func (c *Conversation) SystemPrompt() (string, bool) {
	if !c.HasSystemPrompt() {
		return "", false
	}
	return c.messages[0].Content, true
}

// SetOrPrependSystemPrompt replaces the content of the leading system
// message, or inserts one at index 0 when there is none.
func (c *Conversation) SetOrPrependSystemPrompt(text string) error {
	msg, err := NewMessage(RoleSystem, text)
	if err != nil {
		return err
	}
	if c.HasSystemPrompt() {
		c.messages[0] = msg
		return nil
	}
	c.messages = append(c.messages, Message{})
	copy(c.messages[1:], c.messages)
	c.messages[0] = msg
	return nil
}

// ClearKeepSystem drops every message except a leading system message.
func (c *Conversation) ClearKeepSystem() {
	keep := 0
	if c.HasSystemPrompt() {
		keep = 1
	}
	clear(c.messages[keep:])
	c.messages = c.messages[:keep]
}

// Clone returns an independent copy.
func (c *Conversation) Clone() *Conversation {
	return NewConversation(c.messages...)
}

// Equal reports whether both conversations hold the same messages in the
// same order.
func (c *Conversation) Equal(other *Conversation) bool {
	if c.Len() != other.Len() {
		return false
	}
	for i, msg := range c.messages {
		if msg != other.messages[i] {
			return false
		}
	}
	return true
}
