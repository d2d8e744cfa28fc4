package agent

import (
	"strings"
	"testing"

	"github.com/voicewire/voicewire/pkg/store"
)

func msg(role store.Role, content string) store.Message {
	return store.Message{Role: role, Content: content}
}

func TestWindowHistoryMergesBeforeTruncating(t *testing.T) {
	window := WindowHistory([]store.Message{
		msg(store.RoleUser, strings.Repeat("a", 700)),
		msg(store.RoleUser, strings.Repeat("b", 700)),
		msg(store.RoleAssistant, "ok"),
	})

	if len(window) != 2 {
		t.Fatalf("got %d messages, want 2", len(window))
	}
	if len(window[0].Content) != maxHistoryMessageLength {
		t.Errorf("merged user message length = %d, want %d", len(window[0].Content), maxHistoryMessageLength)
	}
	if !strings.Contains(window[0].Content, "a b") {
		t.Error("merge should join run contents with a space before truncation")
	}
}

func TestWindowHistoryMergeIsCaseInsensitive(t *testing.T) {
	window := WindowHistory([]store.Message{
		msg("USER", "hello"),
		msg(store.RoleUser, "there"),
		msg(store.RoleAssistant, "hi"),
	})
	if len(window) != 2 {
		t.Fatalf("got %d messages, want 2: %v", len(window), window)
	}
	if window[0].Content != "hello there" {
		t.Errorf("merged content = %q", window[0].Content)
	}
}

func TestWindowHistoryBoundaryRoles(t *testing.T) {
	window := WindowHistory([]store.Message{
		msg(store.RoleAssistant, "orphan"),
		msg(store.RoleUser, "question"),
		msg(store.RoleAssistant, "answer"),
		msg(store.RoleUser, "unanswered"),
	})

	if len(window) != 2 {
		t.Fatalf("got %v", window)
	}
	if window[0].Role != store.RoleUser || window[0].Content != "question" {
		t.Errorf("first message = %+v, want the first user turn", window[0])
	}
	if window[len(window)-1].Role == store.RoleUser {
		t.Error("window must not end on a user turn")
	}
}

func TestWindowHistoryBudget(t *testing.T) {
	var messages []store.Message
	for i := 0; i < 100; i++ {
		messages = append(messages,
			msg(store.RoleUser, strings.Repeat("u", 1000)),
			msg(store.RoleAssistant, strings.Repeat("a", 1000)),
		)
	}
	window := WindowHistory(messages)

	total := 0
	for _, m := range window {
		total += len(m.Content)
	}
	if total > maxHistoryTotalLength {
		t.Errorf("window total %d exceeds budget %d", total, maxHistoryTotalLength)
	}
	if len(window) == 0 {
		t.Fatal("window should retain the most recent turns")
	}
	for i := 1; i < len(window); i++ {
		if roleIs(window[i-1].Role, window[i].Role) {
			t.Fatalf("adjacent messages %d and %d share role %s", i-1, i, window[i].Role)
		}
	}
	if window[0].Role != store.RoleUser {
		t.Errorf("window starts with %s, want user", window[0].Role)
	}
}

func TestWindowHistoryEmpty(t *testing.T) {
	if window := WindowHistory(nil); len(window) != 0 {
		t.Errorf("got %v, want empty", window)
	}
	if window := WindowHistory([]store.Message{msg(store.RoleAssistant, "hi")}); len(window) != 0 {
		t.Errorf("assistant-only transcript should window to empty, got %v", window)
	}
}
