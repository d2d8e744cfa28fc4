package agent

import (
	"strings"

	"github.com/voicewire/voicewire/pkg/store"
)

const (
	maxHistoryMessageLength = 1024
	maxHistoryTotalLength   = 40960
)

// WindowHistory reduces a chronological transcript to a bounded replay window
// for a new stream: consecutive same-role messages merge into one, each merged
// message is truncated, then messages accumulate backward from the most recent
// until the total budget is hit. The window must start with a user message and
// must not end with one.
func WindowHistory(messages []store.Message) []store.Message {
	merged := mergeRuns(messages)

	for i := range merged {
		if len(merged[i].Content) > maxHistoryMessageLength {
			merged[i].Content = merged[i].Content[:maxHistoryMessageLength]
		}
	}

	total := 0
	start := len(merged)
	for start > 0 {
		next := total + len(merged[start-1].Content)
		if next > maxHistoryTotalLength {
			break
		}
		total = next
		start--
	}
	window := merged[start:]

	for len(window) > 0 && !roleIs(window[0].Role, store.RoleUser) {
		window = window[1:]
	}
	for len(window) > 0 && roleIs(window[len(window)-1].Role, store.RoleUser) {
		window = window[:len(window)-1]
	}
	return window
}

func mergeRuns(messages []store.Message) []store.Message {
	merged := make([]store.Message, 0, len(messages))
	for _, msg := range messages {
		if n := len(merged); n > 0 && roleIs(merged[n-1].Role, msg.Role) {
			merged[n-1].Content += " " + msg.Content
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}

func roleIs(a, b store.Role) bool {
	return strings.EqualFold(string(a), string(b))
}
