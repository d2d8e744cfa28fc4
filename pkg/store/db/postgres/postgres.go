// Package postgres implements the store interfaces on PostgreSQL via pgx.
// Schema migrations are embedded and applied with goose.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/voicewire/voicewire/pkg/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to dsn, applies pending migrations and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if err := migrate(dsn); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &Store{pool: pool, now: time.Now}, nil
}

func migrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "open postgres for migration")
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "set goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Wrap(err, "apply migrations")
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) SaveMessage(ctx context.Context, sessionID string, role store.Role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (session_id, ts, role, content) VALUES ($1, $2, $3, $4)`,
		sessionID, s.now().UnixMilli(), string(role), content,
	)
	return errors.Wrapf(err, "save message for session %s", sessionID)
}

func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]store.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, ts FROM messages WHERE session_id = $1 ORDER BY ts ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query messages for session %s", sessionID)
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var msg store.Message
		var role string
		if err := rows.Scan(&role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan message row")
		}
		msg.Role = store.Role(role)
		out = append(out, msg)
	}
	return out, errors.Wrap(rows.Err(), "iterate message rows")
}

func (s *Store) CreateSession(ctx context.Context, userID string) (store.Session, error) {
	sess := store.Session{
		UserID:    userID,
		SessionID: uuid.NewString(),
		CreatedAt: s.now().UnixMilli(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, session_id, created_at) VALUES ($1, $2, $3)`,
		sess.UserID, sess.SessionID, sess.CreatedAt,
	)
	if err != nil {
		return store.Session{}, errors.Wrapf(err, "create session for user %s", userID)
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, userID, sessionID string) (*store.Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT user_id, session_id, COALESCE(system_prompt, ''), created_at
		 FROM sessions WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	var sess store.Session
	err := row.Scan(&sess.UserID, &sess.SessionID, &sess.SystemPrompt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get session %s", sessionID)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context, userID string) ([]store.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, session_id, COALESCE(system_prompt, ''), created_at
		 FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query sessions for user %s", userID)
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		var sess store.Session
		if err := rows.Scan(&sess.UserID, &sess.SessionID, &sess.SystemPrompt, &sess.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan session row")
		}
		out = append(out, sess)
	}
	return out, errors.Wrap(rows.Err(), "iterate session rows")
}

func (s *Store) UpdateSystemPrompt(ctx context.Context, userID, sessionID, systemPrompt string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, session_id, system_prompt, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, session_id) DO UPDATE SET system_prompt = EXCLUDED.system_prompt`,
		userID, sessionID, systemPrompt, s.now().UnixMilli(),
	)
	return errors.Wrapf(err, "update system prompt for session %s", sessionID)
}

func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		return errors.Wrapf(err, "delete session %s", sessionID)
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM messages WHERE session_id = $1`, sessionID)
	return errors.Wrapf(err, "delete messages for session %s", sessionID)
}
