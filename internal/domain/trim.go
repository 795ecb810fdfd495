package domain

// DropOldestNonSystem removes the oldest message that is not the leading
// system message and reports whether anything was removed. It evicts one
// message per call; callers loop against whatever budget they measure.
func (c *Conversation) DropOldestNonSystem() bool {
	first := 0
	if c.HasSystemPrompt() {
		first = 1
	}
	if first >= len(c.messages) {
		return false
	}
	copy(c.messages[first:], c.messages[first+1:])
	c.messages[len(c.messages)-1] = Message{}
	c.messages = c.messages[:len(c.messages)-1]
	return true
}
