package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "crispr-agent/errors"
	"crispr-agent/web/types"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

// EnsureSchema creates the required tables if they do not already exist.
// Messages carry a monotone seq so history ordering never depends on
// timestamp ties; history is append-only and never reordered.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            id UUID PRIMARY KEY,
            created_at TIMESTAMPTZ DEFAULT NOW(),
            last_active TIMESTAMPTZ DEFAULT NOW(),
            title TEXT DEFAULT '',
            is_active BOOLEAN DEFAULT TRUE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active DESC)`,
		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            session_id UUID REFERENCES sessions(id) ON DELETE CASCADE,
            seq BIGSERIAL,
            role TEXT NOT NULL,
            content TEXT NOT NULL,
            tool_call_id TEXT DEFAULT '',
            tool_calls JSONB,
            created_at TIMESTAMPTZ DEFAULT NOW()
        )`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_seq ON messages(session_id, seq)`,
	}

	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "execute schema statement: %v", err)
		}
	}
	return nil
}

// CreateSession registers a session under the caller-provided identifier.
// Sessions are created on first contact with an unknown id.
func (s *PostgresStore) CreateSession(ctx context.Context, sessionID uuid.UUID) (types.Session, error) {
	now := time.Now()
	initialTitle := fmt.Sprintf("Chat from %s", now.Format("January 2, 2006"))

	query := `
        INSERT INTO sessions (id, created_at, last_active, title, is_active)
        VALUES ($1, $2, $3, $4, $5)
    `
	if _, err := s.DB.ExecContext(ctx, query, sessionID, now, now, initialTitle, true); err != nil {
		return types.Session{}, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "create session: %v", err)
	}
	return types.Session{
		ID:         sessionID,
		CreatedAt:  now,
		LastActive: now,
		Title:      initialTitle,
		IsActive:   true,
	}, nil
}

func (s *PostgresStore) GetSessionByID(ctx context.Context, sessionID uuid.UUID) (types.Session, error) {
	query := `
		SELECT id, created_at, last_active, title, is_active
		FROM sessions WHERE id = $1
	`
	var sess types.Session
	err := s.DB.QueryRowContext(ctx, query, sessionID).Scan(
		&sess.ID, &sess.CreatedAt, &sess.LastActive, &sess.Title, &sess.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, apperrors.WrapErrorf(apperrors.ErrNotFound, "session %s", sessionID)
	}
	if err != nil {
		return types.Session{}, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "load session: %v", err)
	}
	return sess, nil
}

func (s *PostgresStore) GetSessions(ctx context.Context) ([]types.Session, error) {
	query := `
		SELECT id, created_at, last_active, title, is_active
		FROM sessions
		WHERE is_active = true
		ORDER BY last_active DESC
	`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "list sessions: %v", err)
	}
	defer rows.Close()

	var sessions []types.Session
	for rows.Next() {
		var sess types.Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.LastActive, &sess.Title, &sess.IsActive); err != nil {
			return nil, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "scan session: %v", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *PostgresStore) UpdateSessionTitle(ctx context.Context, sessionID uuid.UUID, title string) error {
	if _, err := s.DB.ExecContext(ctx, `UPDATE sessions SET title = $1 WHERE id = $2`, title, sessionID); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "update session title: %v", err)
	}
	return nil
}

// AppendMessages writes a whole turn's messages in one transaction and bumps
// last_active. A cancelled or failed turn therefore commits nothing.
func (s *PostgresStore) AppendMessages(ctx context.Context, sessionID uuid.UUID, msgs []types.AgentMessage) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "begin turn transaction: %v", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO messages (id, session_id, role, content, tool_call_id, tool_calls, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now()
	for _, msg := range msgs {
		var toolCalls any
		if len(msg.ToolCalls) > 0 {
			encoded, err := json.Marshal(msg.ToolCalls)
			if err != nil {
				return fmt.Errorf("encode tool calls: %w", err)
			}
			toolCalls = encoded
		}
		if _, err := tx.ExecContext(ctx, query,
			uuid.New(), sessionID, msg.Role, msg.Content, msg.ToolCallID, toolCalls, now); err != nil {
			return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "append message: %v", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET last_active = $1 WHERE id = $2`, now, sessionID); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "bump last_active: %v", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "commit turn: %v", err)
	}
	return nil
}

// GetMessagesBySession returns the session's ordered history.
func (s *PostgresStore) GetMessagesBySession(ctx context.Context, sessionID uuid.UUID) ([]types.AgentMessage, error) {
	query := `
		SELECT role, content, tool_call_id, tool_calls FROM messages
		WHERE session_id = $1 ORDER BY seq ASC
	`
	rows, err := s.DB.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "load history: %v", err)
	}
	defer rows.Close()

	var messages []types.AgentMessage
	for rows.Next() {
		var msg types.AgentMessage
		var toolCalls sql.NullString
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.ToolCallID, &toolCalls); err != nil {
			return nil, err
		}
		if toolCalls.Valid && toolCalls.String != "" {
			if err := json.Unmarshal([]byte(toolCalls.String), &msg.ToolCalls); err != nil {
				return nil, fmt.Errorf("decode tool calls: %w", err)
			}
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeactivateStaleSessions marks sessions idle past the retention age inactive.
// History is never deleted by the core; expiry is a policy applied here only
// as deactivation.
func (s *PostgresStore) DeactivateStaleSessions(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sessions SET is_active = false WHERE is_active = true AND last_active < $1`, cutoff)
	if err != nil {
		return 0, apperrors.WrapErrorf(apperrors.ErrDatabaseOperation, "deactivate stale sessions: %v", err)
	}
	return res.RowsAffected()
}

// IsNotFound reports whether err means the session does not exist yet.
func IsNotFound(err error) bool {
	return apperrors.IsNotFound(err)
}
