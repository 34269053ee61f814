package turn

import (
	"context"

	"carscout/app/client/llm"
	"carscout/app/service/criteria"
	"carscout/app/service/inventory"
	"carscout/app/service/store"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// Stable error kinds surfaced to clients so they can decide whether to
// retry the turn.
const (
	CodeExtractionTimeout   = "extraction_timeout"
	CodeExtractionMalformed = "extraction_malformed"
	CodeSearchUnavailable   = "search_unavailable"
	CodeCompositionFailure  = "composition_failure"
	CodeMergeConflict       = "merge_conflict"
	CodeSessionActive       = "session_active"
	CodeInternal            = "internal"
)

// ErrorCode extracts the stable kind from a turn error, falling back to
// internal for anything unclassified.
func ErrorCode(err error) string {
	if o, ok := oops.AsOops(err); ok {
		if code, _ := o.Code().(string); code != "" {
			return code
		}
	}

	return CodeInternal
}

type EventType string

const (
	EventDelta    EventType = "delta"
	EventCriteria EventType = "criteria"
	EventResults  EventType = "search_results"
	EventTitle    EventType = "title"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// Event is one typed element of a turn's ordered output stream. done and
// error are terminal, nothing follows them.
type Event struct {
	Type      EventType               `json:"type"`
	Text      string                  `json:"text,omitempty"`
	Criteria  *criteria.Criteria      `json:"criteria,omitempty"`
	Results   *inventory.SearchResult `json:"results,omitempty"`
	MessageID string                  `json:"message_id,omitempty"`
	Truncated bool                    `json:"truncated,omitempty"`
	ErrorKind string                  `json:"error_kind,omitempty"`
	Message   string                  `json:"message,omitempty"`
}

func (t EventType) terminal() bool {
	return t == EventDone || t == EventError
}

// Collaborator contracts, implemented by app/client/llm, app/service/inventory
// and app/service/store. Narrow on purpose, tests substitute fakes.

type Extractor interface {
	Extract(ctx context.Context, userText, intentSummary string) (*criteria.Extraction, error)
}

type Composer interface {
	Compose(ctx context.Context, in llm.ComposeInput, onDelta func(text string) error) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, spec inventory.Spec) (*inventory.SearchResult, error)
}

type Store interface {
	EnsureChat(ctx context.Context, chatID uuid.UUID) error
	AppendMessage(ctx context.Context, msg store.Message) error
	SetChatTitle(ctx context.Context, chatID uuid.UUID, title string) error
	LoadIntent(ctx context.Context, chatID uuid.UUID) (*criteria.Intent, error)
	SaveIntent(ctx context.Context, in criteria.Intent, expectedVersion int64) (*criteria.Intent, error)
}
