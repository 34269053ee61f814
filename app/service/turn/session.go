package turn

import (
	"context"
	"sync"

	"carscout/app/service/criteria"
	"carscout/app/service/inventory"

	"github.com/google/uuid"
)

const eventBufferSize = 64

// Session is one turn's ordered output channel. Events are emitted from the
// turn goroutine only; the consumer reads Events until it is closed. Exactly
// one terminal event is delivered, anything emitted afterwards is dropped.
type Session struct {
	chatID uuid.UUID

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu       sync.Mutex
	events   chan Event
	terminal bool
}

func newSession(ctx context.Context, chatID uuid.UUID) *Session {
	ctx, cancel := context.WithCancelCause(ctx)

	return &Session{
		chatID: chatID,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, eventBufferSize),
	}
}

func (s *Session) ChatID() uuid.UUID {
	return s.chatID
}

func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) Context() context.Context {
	return s.ctx
}

// Cancel aborts the turn, typically on client disconnect. The orchestrator
// observes it at its next suspension point.
func (s *Session) Cancel(err error) {
	s.cancel(err)
}

// emit delivers one event in order. It reports false once the session is
// terminal or cancelled; the emitter stops producing on false.
func (s *Session) emit(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal {
		return false
	}

	if s.ctx.Err() != nil && !ev.Type.terminal() {
		return false
	}

	select {
	case s.events <- ev:
	case <-s.ctx.Done():
		if !ev.Type.terminal() {
			return false
		}

		// best effort terminal delivery for a slow consumer
		select {
		case s.events <- ev:
		default:
		}
	}

	if ev.Type.terminal() {
		s.terminal = true
		close(s.events)
	}

	return true
}

// close releases the consumer when the turn goroutine exits without a
// terminal event, which only happens on cancellation.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.terminal {
		s.terminal = true
		close(s.events)
	}
}

func (s *Session) emitDelta(text string) bool {
	return s.emit(Event{Type: EventDelta, Text: text})
}

func (s *Session) emitCriteria(c *criteria.Criteria) bool {
	return s.emit(Event{Type: EventCriteria, Criteria: c})
}

func (s *Session) emitResults(r *inventory.SearchResult) bool {
	return s.emit(Event{Type: EventResults, Results: r})
}

func (s *Session) emitTitle(title string) bool {
	return s.emit(Event{Type: EventTitle, Text: title})
}

func (s *Session) emitDone(messageID string, truncated bool) bool {
	return s.emit(Event{Type: EventDone, MessageID: messageID, Truncated: truncated})
}

func (s *Session) emitError(kind, message string) bool {
	return s.emit(Event{Type: EventError, ErrorKind: kind, Message: message})
}
