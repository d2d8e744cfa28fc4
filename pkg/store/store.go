// Package store defines session and message persistence. Concrete drivers live
// in subpackages (db/dynamo, db/postgres, memory) behind the interfaces here.
package store

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one persisted chat turn. Timestamp is unix milliseconds, assigned
// by the store at save time.
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Session is the logical, possibly multi-stream conversation.
type Session struct {
	UserID       string `json:"userId"`
	SessionID    string `json:"sessionId"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// MessageStore persists the transcript of a session.
type MessageStore interface {
	// SaveMessage appends a message; the store assigns the timestamp.
	SaveMessage(ctx context.Context, sessionID string, role Role, content string) error
	// GetMessages returns all messages of a session in chronological
	// ascending order.
	GetMessages(ctx context.Context, sessionID string) ([]Message, error)
}

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (*Session, error)
	// ListSessions returns a user's sessions, most recent first.
	ListSessions(ctx context.Context, userID string) ([]Session, error)
	UpdateSystemPrompt(ctx context.Context, userID, sessionID, systemPrompt string) error
	DeleteSession(ctx context.Context, userID, sessionID string) error
}
