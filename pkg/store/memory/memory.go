// Package memory is an in-process store driver used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/voicewire/voicewire/pkg/store"
)

type Store struct {
	mu       sync.Mutex
	messages map[string][]store.Message
	sessions map[string]store.Session // key userID+"/"+sessionID
	now      func() time.Time
	lastTS   int64
}

func New() *Store {
	return &Store{
		messages: make(map[string][]store.Message),
		sessions: make(map[string]store.Session),
		now:      time.Now,
	}
}

func (s *Store) SaveMessage(_ context.Context, sessionID string, role store.Role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UnixMilli()
	// Keep timestamps strictly increasing so ordering is stable even when two
	// saves land in the same millisecond.
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	s.messages[sessionID] = append(s.messages[sessionID], store.Message{
		Role:      role,
		Content:   content,
		Timestamp: ts,
	})
	return nil
}

func (s *Store) GetMessages(_ context.Context, sessionID string) ([]store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]store.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, userID string) (store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := store.Session{
		UserID:    userID,
		SessionID: uuid.NewString(),
		CreatedAt: s.now().UnixMilli(),
	}
	s.sessions[sessionKey(userID, sess.SessionID)] = sess
	return sess, nil
}

func (s *Store) GetSession(_ context.Context, userID, sessionID string) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(userID, sessionID)]
	if !ok {
		return nil, nil
	}
	out := sess
	return &out, nil
}

func (s *Store) ListSessions(_ context.Context, userID string) ([]store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func (s *Store) UpdateSystemPrompt(_ context.Context, userID, sessionID, systemPrompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(userID, sessionID)
	sess, ok := s.sessions[key]
	if !ok {
		// Mirrors the upsert behavior of the dynamo driver: the agent may be
		// invoked before the web side persisted the session record.
		sess = store.Session{UserID: userID, SessionID: sessionID, CreatedAt: s.now().UnixMilli()}
	}
	sess.SystemPrompt = systemPrompt
	s.sessions[key] = sess
	return nil
}

func (s *Store) DeleteSession(_ context.Context, userID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey(userID, sessionID)
	if _, ok := s.sessions[key]; !ok {
		return errors.Errorf("session %s not found", sessionID)
	}
	delete(s.sessions, key)
	delete(s.messages, sessionID)
	return nil
}

func sessionKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}
