package llm

import "github.com/xiaot623/gogo/chatd/internal/domain"

// TrimToBudget evicts the oldest non-system messages until measure(conv)
// fits budget or nothing more can be evicted. The newest message is the
// turn being answered and is never evicted. It returns how many messages
// were dropped. A budget <= 0 disables trimming.
func TrimToBudget(conv *domain.Conversation, budget int, measure func(*domain.Conversation) int) int {
	if budget <= 0 {
		return 0
	}
	dropped := 0
	for measure(conv) > budget && evictable(conv) && conv.DropOldestNonSystem() {
		dropped++
	}
	return dropped
}

// TrimToMessageCount evicts the oldest non-system messages until at most
// max messages remain (the system prompt counts). Like TrimToBudget it
// keeps the newest message. max <= 0 disables it.
func TrimToMessageCount(conv *domain.Conversation, max int) int {
	if max <= 0 {
		return 0
	}
	dropped := 0
	for conv.Len() > max && evictable(conv) && conv.DropOldestNonSystem() {
		dropped++
	}
	return dropped
}

// evictable reports whether conv holds anything besides the leading system
// prompt and the newest message.
func evictable(conv *domain.Conversation) bool {
	keep := 1
	if conv.HasSystemPrompt() {
		keep = 2
	}
	return conv.Len() > keep
}
