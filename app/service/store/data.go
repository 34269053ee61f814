package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrVersionConflict is returned when an intent compare-and-swap loses to a
// concurrent writer.
var ErrVersionConflict = errors.New("intent version conflict")

type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ChatID    uuid.UUID `db:"chat_id" json:"chat_id"`
	Role      string    `db:"role" json:"role"`
	Content   string    `db:"content" json:"content"`
	Truncated bool      `db:"truncated" json:"truncated"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type intentRow struct {
	ChatID          uuid.UUID `db:"chat_id"`
	Criteria        []byte    `db:"criteria"`
	Version         int64     `db:"version"`
	ClarifyingTurns int       `db:"clarifying_turns"`
}
