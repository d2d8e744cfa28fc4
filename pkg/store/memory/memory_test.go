package memory

import (
	"context"
	"testing"

	"github.com/voicewire/voicewire/pkg/store"
)

func TestMessagesChronological(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.SaveMessage(ctx, "sess", store.RoleUser, "hello"); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := s.SaveMessage(ctx, "sess", store.RoleAssistant, "hi there"); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}
	if err := s.SaveMessage(ctx, "other", store.RoleUser, "unrelated"); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	msgs, err := s.GetMessages(ctx, "sess")
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Role != store.RoleUser || msgs[1].Role != store.RoleAssistant {
		t.Fatalf("unexpected order: %+v", msgs)
	}
	if msgs[0].Timestamp >= msgs[1].Timestamp {
		t.Fatalf("timestamps not strictly increasing: %d >= %d", msgs[0].Timestamp, msgs[1].Timestamp)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()

	sess, err := s.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.UpdateSystemPrompt(ctx, "user-1", sess.SessionID, "be nice"); err != nil {
		t.Fatalf("UpdateSystemPrompt: %v", err)
	}
	got, err := s.GetSession(ctx, "user-1", sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.SystemPrompt != "be nice" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if err := s.DeleteSession(ctx, "user-1", sess.SessionID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	got, err = s.GetSession(ctx, "user-1", sess.SessionID)
	if err != nil {
		t.Fatalf("GetSession after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("session survived delete: %+v", got)
	}
}

func TestUpdateSystemPromptUpserts(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := s.UpdateSystemPrompt(ctx, "u", "never-created", "prompt"); err != nil {
		t.Fatalf("UpdateSystemPrompt: %v", err)
	}
	got, err := s.GetSession(ctx, "u", "never-created")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.SystemPrompt != "prompt" {
		t.Fatalf("upsert did not create session: %+v", got)
	}
}
