package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLitePersister stores snapshots in a local SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

func NewSQLitePersister(ctx context.Context, path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS conversation_snapshots (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		voice_id TEXT NOT NULL,
		context TEXT NOT NULL,
		messages TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) SaveSnapshot(ctx context.Context, key string, conv Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = p.db.ExecContext(ctx,
		`INSERT INTO conversation_snapshots (key, name, voice_id, context, messages, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			voice_id = excluded.voice_id,
			context = excluded.context,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		key, conv.Name, conv.VoiceID, conv.Context, string(messages), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (p *SQLitePersister) LoadSnapshot(ctx context.Context, key string) (Conversation, error) {
	var conv Conversation
	var messages string
	err := p.db.QueryRowContext(ctx,
		`SELECT name, voice_id, context, messages FROM conversation_snapshots WHERE key = ?`, key,
	).Scan(&conv.Name, &conv.VoiceID, &conv.Context, &messages)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &conv.Messages); err != nil {
		return Conversation{}, fmt.Errorf("decode messages: %w", err)
	}
	return conv, nil
}

func (p *SQLitePersister) Close() error {
	return p.db.Close()
}

func (p *SQLitePersister) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
