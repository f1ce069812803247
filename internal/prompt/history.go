package prompt

import (
	"helmsman/internal/llm"
)

// DefaultAssistantRetain is how many recent assistant messages survive
// trimming before assistant eviction starts.
const DefaultAssistantRetain = 4

// TrimHistory drops messages until the history fits budgetChars. Eviction
// order: tool messages first (oldest first), then assistant messages beyond
// retainAssistant (oldest first, most recent kept), then user messages other
// than the most recent one. The latest user message is never evicted, even
// when it alone exceeds the budget.
func TrimHistory(history []llm.Message, budgetChars, retainAssistant int) []llm.Message {
	if retainAssistant < 0 {
		retainAssistant = DefaultAssistantRetain
	}
	if historySize(history) <= budgetChars {
		return history
	}

	lastUser := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == "user" {
			lastUser = i
			break
		}
	}

	evictable := func(pass int, idx int, msg llm.Message, assistantSeenFromEnd int) bool {
		switch pass {
		case 0:
			return msg.Role == "tool"
		case 1:
			return msg.Role == "assistant" && assistantSeenFromEnd > retainAssistant
		default:
			return msg.Role == "user" && idx != lastUser
		}
	}

	for pass := 0; pass < 3; pass++ {
		for historySize(history) > budgetChars {
			// Count assistant messages from the end so the retain window
			// tracks the current (post-eviction) history.
			assistantRank := make([]int, len(history))
			seen := 0
			for i := len(history) - 1; i >= 0; i-- {
				if history[i].Role == "assistant" {
					seen++
				}
				assistantRank[i] = seen
			}

			victim := -1
			for i, msg := range history {
				if evictable(pass, i, msg, assistantRank[i]) {
					victim = i
					break
				}
			}
			if victim == -1 {
				break
			}
			history = append(history[:victim:victim], history[victim+1:]...)

			// Re-find the latest user message; indices shifted.
			lastUser = -1
			for i := len(history) - 1; i >= 0; i-- {
				if history[i].Role == "user" {
					lastUser = i
					break
				}
			}
		}
	}
	return history
}

func historySize(messages []llm.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total
}
