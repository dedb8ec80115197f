package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresPersister stores snapshots in PostgreSQL.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

func NewPostgresPersister(ctx context.Context, databaseURL string) (*PostgresPersister, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresPersister{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_snapshots (
			key TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			voice_id TEXT NOT NULL,
			context TEXT NOT NULL,
			messages JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_snapshots_name ON conversation_snapshots (name, updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *PostgresPersister) SaveSnapshot(ctx context.Context, key string, conv Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = p.pool.Exec(ctx,
		`INSERT INTO conversation_snapshots (key, name, voice_id, context, messages, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			voice_id = EXCLUDED.voice_id,
			context = EXCLUDED.context,
			messages = EXCLUDED.messages,
			updated_at = now()`,
		key, conv.Name, conv.VoiceID, conv.Context, messages,
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (p *PostgresPersister) LoadSnapshot(ctx context.Context, key string) (Conversation, error) {
	var conv Conversation
	var messages []byte
	err := p.pool.QueryRow(ctx,
		`SELECT name, voice_id, context, messages FROM conversation_snapshots WHERE key=$1`, key,
	).Scan(&conv.Name, &conv.VoiceID, &conv.Context, &messages)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("query snapshot: %w", err)
	}
	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return Conversation{}, fmt.Errorf("decode messages: %w", err)
	}
	return conv, nil
}

func (p *PostgresPersister) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresPersister) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
