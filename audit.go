package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

//////////////////////////////////////////////////////////////
// MODERATION LOG
//////////////////////////////////////////////////////////////

// ModerationAction is one evaluated message as written to the audit table.
type ModerationAction struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	SenderID  string    `json:"sender_id"`
	MessageID string    `json:"message_id"`
	Verdict   string    `json:"verdict"`
	Reason    string    `json:"reason,omitempty"`
	Deleted   bool      `json:"deleted"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const auditSchema = `
CREATE TABLE IF NOT EXISTS moderation_actions (
	id         TEXT PRIMARY KEY,
	chat_id    TEXT NOT NULL,
	sender_id  TEXT NOT NULL,
	message_id TEXT NOT NULL,
	verdict    TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	deleted    INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_moderation_actions_created ON moderation_actions(created_at);
`

// AuditStore keeps the moderation log in the same SQLite file as the WhatsApp session.
type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(ctx context.Context, db *sql.DB) (*AuditStore, error) {
	if _, err := db.ExecContext(ctx, auditSchema); err != nil {
		return nil, fmt.Errorf("create moderation_actions: %w", err)
	}
	return &AuditStore{db: db}, nil
}

func (s *AuditStore) Record(ctx context.Context, a ModerationAction) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_actions (id, chat_id, sender_id, message_id, verdict, reason, deleted, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ChatID, a.SenderID, a.MessageID, a.Verdict, a.Reason, a.Deleted, a.Error, a.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert moderation action: %w", err)
	}
	return nil
}

// Recent returns up to limit actions, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]ModerationAction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender_id, message_id, verdict, reason, deleted, error, created_at
		 FROM moderation_actions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query moderation actions: %w", err)
	}
	defer rows.Close()

	var actions []ModerationAction
	for rows.Next() {
		var a ModerationAction
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.ChatID, &a.SenderID, &a.MessageID, &a.Verdict, &a.Reason, &a.Deleted, &a.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("scan moderation action: %w", err)
		}
		a.CreatedAt = time.UnixMilli(createdAt)
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
