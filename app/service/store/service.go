package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"carscout/app/service/criteria"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/samber/do"
)

const schema = `
CREATE TABLE IF NOT EXISTS chats (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	chat_id UUID NOT NULL REFERENCES chats (id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	truncated BOOLEAN NOT NULL DEFAULT false,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS messages_chat_idx ON messages (chat_id, created_at);
CREATE TABLE IF NOT EXISTS intents (
	chat_id UUID PRIMARY KEY REFERENCES chats (id) ON DELETE CASCADE,
	criteria JSONB NOT NULL,
	version BIGINT NOT NULL,
	clarifying_turns INT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type Service struct {
	db *sqlx.DB
}

func New(di *do.Injector) (*Service, error) {
	db := do.MustInvoke[*sqlx.DB](di)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure chat schema: %w", err)
	}

	return &Service{db: db}, nil
}

func (s *Service) EnsureChat(ctx context.Context, chatID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, chatID)
	if err != nil {
		return fmt.Errorf("failed to ensure chat: %w", err)
	}

	return nil
}

func (s *Service) SetChatTitle(ctx context.Context, chatID uuid.UUID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET title = $2 WHERE id = $1`, chatID, title)
	if err != nil {
		return fmt.Errorf("failed to set chat title: %w", err)
	}

	return nil
}

// AppendMessage inserts one message. Messages are append-only, there is no
// update path.
func (s *Service) AppendMessage(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, role, content, truncated, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ChatID, msg.Role, msg.Content, msg.Truncated, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	return nil
}

func (s *Service) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]Message, error) {
	result := []Message{}

	err := s.db.SelectContext(ctx, &result,
		`SELECT * FROM messages WHERE chat_id = $1 ORDER BY created_at LIMIT $2 OFFSET $3`,
		chatID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return result, nil
}

// LoadIntent returns the accumulated intent for a chat, or an empty version
// zero intent when none was committed yet.
func (s *Service) LoadIntent(ctx context.Context, chatID uuid.UUID) (*criteria.Intent, error) {
	var row intentRow

	err := s.db.GetContext(ctx, &row,
		`SELECT chat_id, criteria, version, clarifying_turns FROM intents WHERE chat_id = $1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return &criteria.Intent{ChatID: chatID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load intent: %w", err)
	}

	result := &criteria.Intent{
		ChatID:          row.ChatID,
		Version:         row.Version,
		ClarifyingTurns: row.ClarifyingTurns,
	}

	if err = json.Unmarshal(row.Criteria, &result.Criteria); err != nil {
		return nil, fmt.Errorf("failed to decode stored criteria: %w", err)
	}

	return result, nil
}

// SaveIntent commits the merged intent with compare-and-swap on version.
// The stored version advances by exactly one; a stale expectedVersion
// returns ErrVersionConflict and leaves the row untouched.
func (s *Service) SaveIntent(ctx context.Context, in criteria.Intent, expectedVersion int64) (*criteria.Intent, error) {
	data, err := json.Marshal(in.Criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to encode criteria: %w", err)
	}

	var newVersion int64

	err = s.db.GetContext(ctx, &newVersion,
		`INSERT INTO intents (chat_id, criteria, version, clarifying_turns)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (chat_id) DO UPDATE
		 SET criteria = $2, version = intents.version + 1, clarifying_turns = $3, updated_at = now()
		 WHERE intents.version = $4
		 RETURNING version`,
		in.ChatID, data, in.ClarifyingTurns, expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionConflict
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save intent: %w", err)
	}

	slog.Debug("Committed intent", "chat_id", in.ChatID, "version", newVersion)

	saved := in
	saved.Version = newVersion

	return &saved, nil
}
