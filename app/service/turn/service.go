package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"carscout/app/client/llm"
	"carscout/app/config"
	"carscout/app/service/criteria"
	"carscout/app/service/inventory"
	"carscout/app/service/store"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/samber/oops"
)

const (
	extractTimeout  = 20 * time.Second
	searchTimeout   = 10 * time.Second
	composeTimeout  = 60 * time.Second
	extractBackoff  = 2 * time.Second
	finalizeTimeout = 5 * time.Second

	maxTitleLength = 60
)

// Service drives one conversational turn: extract criteria from the user
// message, merge them into the chat's intent, decide readiness, optionally
// search the inventory and stream the composed reply. At most one turn is in
// flight per chat; turns for different chats run in parallel.
type Service struct {
	cfg    *config.Config
	policy criteria.Policy

	extractor Extractor
	composer  Composer
	searcher  Searcher
	store     Store

	mu     sync.Mutex
	active map[uuid.UUID]*Session
}

func New(di *do.Injector) (*Service, error) {
	return NewWithCollaborators(
		do.MustInvoke[*config.Config](di),
		do.MustInvoke[*llm.ExtractionAgent](di),
		do.MustInvoke[*llm.ReplyComposer](di),
		do.MustInvoke[*inventory.Service](di),
		do.MustInvoke[*store.Service](di),
	), nil
}

func NewWithCollaborators(cfg *config.Config, extractor Extractor, composer Composer, searcher Searcher, st Store) *Service {
	return &Service{
		cfg:       cfg,
		policy:    criteria.NewPolicy(cfg.Readiness.PrimaryFields, cfg.Readiness.MaxClarifyingTurns),
		extractor: extractor,
		composer:  composer,
		searcher:  searcher,
		store:     st,
		active:    make(map[uuid.UUID]*Session),
	}
}

// ProcessMessage admits one turn for the chat and starts it. A second turn
// while one is streaming is rejected, not queued.
func (s *Service) ProcessMessage(ctx context.Context, chatID uuid.UUID, text string) (*Session, error) {
	s.mu.Lock()

	if _, busy := s.active[chatID]; busy {
		s.mu.Unlock()
		return nil, oops.Code(CodeSessionActive).Errorf("a turn is already streaming for this chat")
	}

	sess := newSession(ctx, chatID)
	s.active[chatID] = sess
	s.mu.Unlock()

	go s.runTurn(sess, text)

	return sess, nil
}

func (s *Service) runTurn(sess *Session, text string) {
	chatID := sess.chatID

	defer func() {
		s.mu.Lock()
		delete(s.active, chatID)
		s.mu.Unlock()

		sess.close()
	}()

	ctx := sess.ctx
	start := time.Now()

	if err := s.store.EnsureChat(ctx, chatID); err != nil {
		s.failTurn(sess, oops.Code(CodeInternal).Wrapf(err, "failed to ensure chat"))
		return
	}

	userMsg := store.Message{ID: uuid.New(), ChatID: chatID, Role: store.RoleUser, Content: text}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		s.failTurn(sess, oops.Code(CodeInternal).Wrapf(err, "failed to persist user message"))
		return
	}

	prev, err := s.store.LoadIntent(ctx, chatID)
	if err != nil {
		s.failTurn(sess, oops.Code(CodeInternal).Wrapf(err, "failed to load intent"))
		return
	}

	ext, degraded := s.extract(ctx, text, prev.Criteria.Summary())
	if ctx.Err() != nil {
		return
	}

	merged := criteria.Merge(prev.Criteria, *ext)
	ready := s.policy.Ready(criteria.Intent{
		Criteria:        merged,
		ClarifyingTurns: prev.ClarifyingTurns,
	}, ext.ShowAnything)

	next := criteria.Intent{ChatID: chatID, Criteria: merged}
	if ready {
		next.ClarifyingTurns = 0
	} else {
		next.ClarifyingTurns = prev.ClarifyingTurns + 1
	}

	sess.emitCriteria(&merged)

	var results *inventory.SearchResult
	noMatches := false

	if ready {
		spec := inventory.BuildSpec(merged, s.cfg.Search.DefaultResults, s.cfg.Search.MaxResults)

		searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
		results, err = s.searcher.Search(searchCtx, spec)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.failTurn(sess, oops.Code(CodeSearchUnavailable).Wrapf(err, "inventory search failed"))
			return
		}

		// zero matches is a normal reply, not a failure
		noMatches = results.TotalCount == 0
		sess.emitResults(results)
	}

	composeIn := llm.ComposeInput{
		UserText:        text,
		CriteriaSummary: merged.Summary(),
		CriteriaDiff:    criteria.Diff(prev.Criteria, merged),
		Results:         results,
		NoMatches:       noMatches,
		Degraded:        degraded,
	}

	var partial strings.Builder

	composeCtx, cancel := context.WithTimeout(ctx, composeTimeout)
	replyText, err := s.composer.Compose(composeCtx, composeIn, func(delta string) error {
		partial.WriteString(delta)
		if !sess.emitDelta(delta) {
			return context.Canceled
		}
		return nil
	})
	cancel()

	if err != nil {
		if ctx.Err() != nil {
			s.finalizeCancelled(sess, *prev, next, ext, ready, partial.String())
			return
		}

		s.persistTruncated(ctx, chatID, partial.String())
		s.failTurn(sess, oops.Code(CodeCompositionFailure).Wrapf(err, "reply composition failed"))
		return
	}

	if replyText == "" {
		replyText = strings.TrimSpace(partial.String())
	}

	saved, err := s.commitIntent(ctx, *prev, next, ext, ready)
	if err != nil {
		s.failTurn(sess, err)
		return
	}

	// a conflict retry re-merges against a fresh intent, keep the client's
	// view aligned with what was actually committed
	if len(criteria.Diff(merged, saved.Criteria)) > 0 {
		sess.emitCriteria(&saved.Criteria)
	}

	assistantMsg := store.Message{ID: uuid.New(), ChatID: chatID, Role: store.RoleAssistant, Content: replyText}
	if err = s.store.AppendMessage(ctx, assistantMsg); err != nil {
		s.failTurn(sess, oops.Code(CodeInternal).Wrapf(err, "failed to persist assistant message"))
		return
	}

	if prev.Criteria.Empty() && !merged.Empty() {
		title := chatTitle(merged)
		if err = s.store.SetChatTitle(ctx, chatID, title); err != nil {
			slog.Warn("Failed to set chat title", "chat_id", chatID, "error", err)
		} else {
			sess.emitTitle(title)
		}
	}

	sess.emitDone(assistantMsg.ID.String(), false)

	slog.Info("Processed turn",
		"chat_id", chatID,
		"version", saved.Version,
		"ready", ready,
		"duration", time.Since(start))
}

// extract calls the extraction collaborator with one retry. Any failure
// degrades to an empty extraction so the turn continues on existing state.
func (s *Service) extract(ctx context.Context, text, summary string) (*criteria.Extraction, bool) {
	extractCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	ext, err := s.extractor.Extract(extractCtx, text, summary)
	cancel()

	if err == nil {
		return ext, false
	}

	if ctx.Err() != nil {
		return &criteria.Extraction{}, true
	}

	slog.Warn("Extraction failed, retrying once", "error", err)

	select {
	case <-time.After(extractBackoff):
	case <-ctx.Done():
		return &criteria.Extraction{}, true
	}

	extractCtx, cancel = context.WithTimeout(ctx, extractTimeout)
	ext, err = s.extractor.Extract(extractCtx, text, summary)
	cancel()

	if err == nil {
		return ext, false
	}

	kind := CodeExtractionMalformed
	if errors.Is(err, context.DeadlineExceeded) {
		kind = CodeExtractionTimeout
	}

	slog.Warn("Extraction degraded to empty", "kind", kind, "error", err)

	return &criteria.Extraction{}, true
}

// commitIntent advances the stored intent by compare-and-swap. On a stale
// version the extraction is re-merged once against the fresh intent before
// surfacing a conflict.
func (s *Service) commitIntent(ctx context.Context, prev, next criteria.Intent, ext *criteria.Extraction, ready bool) (*criteria.Intent, error) {
	saved, err := s.store.SaveIntent(ctx, next, prev.Version)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, store.ErrVersionConflict) {
		return nil, oops.Code(CodeInternal).Wrapf(err, "failed to save intent")
	}

	fresh, err := s.store.LoadIntent(ctx, prev.ChatID)
	if err != nil {
		return nil, oops.Code(CodeInternal).Wrapf(err, "failed to reload intent")
	}

	retry := criteria.Intent{ChatID: prev.ChatID, Criteria: criteria.Merge(fresh.Criteria, *ext)}
	if ready {
		retry.ClarifyingTurns = 0
	} else {
		retry.ClarifyingTurns = fresh.ClarifyingTurns + 1
	}

	saved, err = s.store.SaveIntent(ctx, retry, fresh.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, oops.Code(CodeMergeConflict).Wrapf(err, "concurrent merge conflict")
	}
	if err != nil {
		return nil, oops.Code(CodeInternal).Wrapf(err, "failed to save intent")
	}

	return saved, nil
}

// finalizeCancelled handles client disconnect mid-stream: the merge already
// succeeded, so the intent is committed and the partial reply is persisted
// marked truncated instead of being discarded.
func (s *Service) finalizeCancelled(sess *Session, prev, next criteria.Intent, ext *criteria.Extraction, ready bool, partial string) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	if _, err := s.commitIntent(ctx, prev, next, ext, ready); err != nil {
		slog.Warn("Failed to commit intent after cancellation", "chat_id", prev.ChatID, "error", err)
	}

	s.persistTruncated(ctx, sess.chatID, partial)

	slog.Info("Turn cancelled by client", "chat_id", sess.chatID, "partial_len", len(partial))
}

func (s *Service) persistTruncated(ctx context.Context, chatID uuid.UUID, partial string) {
	partial = strings.TrimSpace(partial)
	if partial == "" {
		return
	}

	msg := store.Message{
		ID:        uuid.New(),
		ChatID:    chatID,
		Role:      store.RoleAssistant,
		Content:   partial,
		Truncated: true,
	}

	if err := s.store.AppendMessage(ctx, msg); err != nil {
		slog.Warn("Failed to persist truncated reply", "chat_id", chatID, "error", err)
	}
}

func (s *Service) failTurn(sess *Session, err error) {
	kind := ErrorCode(err)

	slog.Error("Turn failed",
		"chat_id", sess.chatID,
		"kind", kind,
		"error", err,
		"telegram", true)

	sess.emitError(kind, err.Error())
}

func chatTitle(c criteria.Criteria) string {
	title := c.Summary()

	// brand values can carry multi-byte runes, never split one
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}

	return title
}

func (s *Service) Close() error {
	return nil
}
