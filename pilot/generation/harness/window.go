package harness

import (
	ports "github.com/ZanzyTHEbar/suite-pilot/pilot/generation/harness/ports"
)

// Window keeps the most recent n messages of history. A leading user
// message is pinned and counts toward n. The cut never orphans a tool
// result: it moves forward to the next assistant message, or, when that
// would leave no assistant turn, back to the assistant message that
// requested the results, which can exceed n. The system prompt is not part
// of history and is never windowed.
func Window(history []ports.PromptMessage, n int) []ports.PromptMessage {
	if n < 1 {
		n = 1
	}
	if len(history) <= n {
		return history
	}
	head := 0
	if history[0].Role == ports.RoleUser {
		head = 1
	}

	start := len(history) - max(n-head, 1)
	next := start
	for next < len(history) && history[next].Role == ports.RoleTool {
		next++
	}
	if next < len(history) {
		start = next
	} else {
		for start > head && history[start].Role == ports.RoleTool {
			start--
		}
	}
	if start <= head {
		return history
	}

	out := make([]ports.PromptMessage, 0, head+len(history)-start)
	out = append(out, history[:head]...)
	return append(out, history[start:]...)
}

// truncateRunes cuts s to at most limit runes.
func truncateRunes(s string, limit int) string {
	if limit < 1 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
