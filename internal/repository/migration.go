package repository

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id           TEXT PRIMARY KEY,
        username     TEXT NOT NULL UNIQUE,
        display_name TEXT NOT NULL DEFAULT '',
        avatar_url   TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS chats (
        id               TEXT PRIMARY KEY,
        kind             TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
        last_activity_at TIMESTAMPTZ NOT NULL,
        has_unread       BOOLEAN NOT NULL DEFAULT FALSE,
        created_at       TIMESTAMPTZ NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
        chat_id   TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id   TEXT NOT NULL,
        joined_at TIMESTAMPTZ NOT NULL,
        PRIMARY KEY (chat_id, user_id)
    )`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
        id         TEXT PRIMARY KEY,
        chat_id    TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id  TEXT NOT NULL,
        content    TEXT NOT NULL,
        created_at TIMESTAMPTZ NOT NULL,
        is_read    BOOLEAN NOT NULL DEFAULT FALSE
    )`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_created ON chat_messages (chat_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants (user_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
        id           TEXT PRIMARY KEY,
        username     TEXT NOT NULL UNIQUE,
        display_name TEXT NOT NULL DEFAULT '',
        avatar_url   TEXT NOT NULL DEFAULT ''
    )`,
	`CREATE TABLE IF NOT EXISTS chats (
        id               TEXT PRIMARY KEY,
        kind             TEXT NOT NULL CHECK (kind IN ('direct', 'group')),
        last_activity_at TIMESTAMP NOT NULL,
        has_unread       BOOLEAN NOT NULL DEFAULT 0,
        created_at       TIMESTAMP NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
        chat_id   TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        user_id   TEXT NOT NULL,
        joined_at TIMESTAMP NOT NULL,
        PRIMARY KEY (chat_id, user_id)
    )`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
        id         TEXT PRIMARY KEY,
        chat_id    TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
        sender_id  TEXT NOT NULL,
        content    TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL,
        is_read    BOOLEAN NOT NULL DEFAULT 0
    )`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_created ON chat_messages (chat_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants (user_id)`,
}

// Migrate creates the tables the realtime plane owns. It is idempotent.
func Migrate(ctx context.Context, db DBTX, dialect Dialect) error {
	schema := postgresSchema
	if dialect == DialectSQLite {
		schema = sqliteSchema
	}
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d (%s): %w", i+1, dialect, err)
		}
	}
	return nil
}
