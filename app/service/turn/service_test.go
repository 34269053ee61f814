package turn

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"carscout/app/client/llm"
	"carscout/app/config"
	"carscout/app/service/criteria"
	"carscout/app/service/inventory"
	"carscout/app/service/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
	fails int
	err   error
	ext   *criteria.Extraction
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string) (*criteria.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.calls <= f.fails {
		return nil, f.err
	}

	return f.ext, nil
}

type fakeComposer struct {
	mu     sync.Mutex
	deltas []string
	text   string
	err    error
	block  chan struct{}
	got    llm.ComposeInput
}

func (f *fakeComposer) Compose(ctx context.Context, in llm.ComposeInput, onDelta func(string) error) (string, error) {
	f.mu.Lock()
	f.got = in
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	for _, d := range f.deltas {
		if err := onDelta(d); err != nil {
			return "", err
		}
	}

	return f.text, f.err
}

func (f *fakeComposer) input() llm.ComposeInput {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.got
}

type fakeSearcher struct {
	mu     sync.Mutex
	called bool
	spec   inventory.Spec
	result *inventory.SearchResult
	err    error
}

func (f *fakeSearcher) Search(_ context.Context, spec inventory.Spec) (*inventory.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.called = true
	f.spec = spec

	return f.result, f.err
}

func (f *fakeSearcher) wasCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.called
}

type fakeStore struct {
	mu            sync.Mutex
	intents       map[uuid.UUID]criteria.Intent
	messages      []store.Message
	titles        map[uuid.UUID]string
	saveCalls     int
	conflictsLeft int

	// installed as the stored intent when a conflict is reported, standing in
	// for the concurrent writer that caused it
	conflictIntent *criteria.Intent
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		intents: make(map[uuid.UUID]criteria.Intent),
		titles:  make(map[uuid.UUID]string),
	}
}

func (f *fakeStore) EnsureChat(_ context.Context, _ uuid.UUID) error {
	return nil
}

func (f *fakeStore) AppendMessage(_ context.Context, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) SetChatTitle(_ context.Context, chatID uuid.UUID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.titles[chatID] = title
	return nil
}

func (f *fakeStore) LoadIntent(_ context.Context, chatID uuid.UUID) (*criteria.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if in, ok := f.intents[chatID]; ok {
		return &in, nil
	}

	return &criteria.Intent{ChatID: chatID}, nil
}

func (f *fakeStore) SaveIntent(_ context.Context, in criteria.Intent, expectedVersion int64) (*criteria.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.saveCalls++

	if f.conflictsLeft > 0 {
		f.conflictsLeft--
		if f.conflictIntent != nil {
			f.intents[in.ChatID] = *f.conflictIntent
		}
		return nil, store.ErrVersionConflict
	}

	cur := f.intents[in.ChatID]
	if cur.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	in.Version = expectedVersion + 1
	f.intents[in.ChatID] = in

	return &in, nil
}

func (f *fakeStore) intent(chatID uuid.UUID) criteria.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.intents[chatID]
}

func (f *fakeStore) allMessages() []store.Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]store.Message, len(f.messages))
	copy(out, f.messages)

	return out
}

func newTestService(ex Extractor, co Composer, se Searcher, st Store) *Service {
	cfg := &config.Config{
		Search: config.Search{MaxResults: 20, DefaultResults: 5},
		Readiness: config.Readiness{
			PrimaryFields:      []string{"body_style", "price_to", "brand"},
			MaxClarifyingTurns: 3,
		},
	}

	return NewWithCollaborators(cfg, ex, co, se, st)
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}

	return out
}

func TestTurnWithSearch(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{BodyStyle: criteria.Set("suv")}}
	composer := &fakeComposer{deltas: []string{"Here ", "you go"}, text: "Here you go"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{
		Items:      []inventory.Car{{Brand: "Toyota", Model: "RAV4"}},
		TotalCount: 1,
	}}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "I want an SUV")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	assert.Equal(t, []EventType{
		EventCriteria, EventResults, EventDelta, EventDelta, EventTitle, EventDone,
	}, eventTypes(events))

	require.NotNil(t, events[0].Criteria)
	require.NotNil(t, events[0].Criteria.BodyStyle)
	assert.Equal(t, "suv", *events[0].Criteria.BodyStyle)

	require.NotNil(t, events[1].Results)
	assert.Equal(t, 1, events[1].Results.TotalCount)

	// intent committed with one version step
	in := st.intent(chatID)
	assert.Equal(t, int64(1), in.Version)
	assert.Equal(t, 0, in.ClarifyingTurns)

	msgs := st.allMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleUser, msgs[0].Role)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Here you go", msgs[1].Content)
	assert.False(t, msgs[1].Truncated)

	assert.Equal(t, 5, searcher.spec.Limit)
}

func TestTurnClarifying(t *testing.T) {
	chatID := uuid.New()

	// seats is not a primary field, the turn asks a question instead
	extractor := &fakeExtractor{ext: &criteria.Extraction{Seats: criteria.Set(7)}}
	composer := &fakeComposer{deltas: []string{"What's your budget?"}, text: "What's your budget?"}
	searcher := &fakeSearcher{}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "7 seats please")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	assert.Equal(t, []EventType{
		EventCriteria, EventDelta, EventTitle, EventDone,
	}, eventTypes(events))

	assert.False(t, searcher.wasCalled())
	assert.Nil(t, composer.input().Results)

	in := st.intent(chatID)
	assert.Equal(t, int64(1), in.Version)
	assert.Equal(t, 1, in.ClarifyingTurns)
}

func TestTurnShowAnythingForcesSearch(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{ShowAnything: true}}
	composer := &fakeComposer{text: "Take a look"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 0}}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "just show me something")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	assert.True(t, searcher.wasCalled())
	assert.True(t, composer.input().NoMatches)
	assert.Equal(t, EventDone, events[len(events)-1].Type)
}

func TestSecondConcurrentTurnRejected(t *testing.T) {
	chatID := uuid.New()

	block := make(chan struct{})
	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{block: block, text: "ok"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 0}}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "first")
	require.NoError(t, err)

	// second turn for the same chat is rejected while the first streams
	_, err = svc.ProcessMessage(context.Background(), chatID, "second")
	require.Error(t, err)
	assert.Equal(t, CodeSessionActive, ErrorCode(err))

	// a different chat is admitted in parallel
	other, err := svc.ProcessMessage(context.Background(), uuid.New(), "other chat")
	require.NoError(t, err)

	close(block)

	collectEvents(t, sess)
	collectEvents(t, other)

	// after the terminal event the chat accepts turns again
	sess, err = svc.ProcessMessage(context.Background(), chatID, "third")
	require.NoError(t, err)
	collectEvents(t, sess)
}

func TestSearchFailureSurfacedOnce(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{PriceTo: criteria.Set[int64](3000000)}}
	composer := &fakeComposer{text: "never called"}
	searcher := &fakeSearcher{err: errors.New("inventory down")}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "under 3 million")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	assert.Equal(t, []EventType{EventCriteria, EventError}, eventTypes(events))
	assert.Equal(t, CodeSearchUnavailable, events[1].ErrorKind)

	// intent untouched by the failed turn
	assert.Equal(t, 0, st.saveCalls)
	assert.Equal(t, int64(0), st.intent(chatID).Version)
}

func TestExtractionDegradesToEmpty(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{fails: 2, err: errors.New("bad json")}
	composer := &fakeComposer{deltas: []string{"Could you rephrase?"}, text: "Could you rephrase?"}
	searcher := &fakeSearcher{}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "gibberish")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	// the turn completes on existing state instead of failing
	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.True(t, composer.input().Degraded)
	assert.False(t, searcher.wasCalled())
	assert.Equal(t, 2, extractor.calls)

	in := st.intent(chatID)
	assert.Equal(t, int64(1), in.Version)
	assert.Equal(t, 1, in.ClarifyingTurns)
}

func TestCompositionFailureKeepsPartial(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{deltas: []string{"Here are so"}, err: errors.New("model hiccup")}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 2}}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "toyota")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, CodeCompositionFailure, last.ErrorKind)

	// the partial reply is retained, marked truncated; the intent is not
	msgs := st.allMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Here are so", msgs[1].Content)
	assert.True(t, msgs[1].Truncated)
	assert.Equal(t, 0, st.saveCalls)
}

func TestMergeConflictRetriedOnce(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{text: "ok"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 0}}
	st := newFakeStore()
	st.conflictsLeft = 1

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "toyota")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	assert.Equal(t, EventDone, events[len(events)-1].Type)
	assert.Equal(t, 2, st.saveCalls)
	assert.Equal(t, int64(1), st.intent(chatID).Version)
}

func TestMergeConflictRetryReemitsCriteria(t *testing.T) {
	chatID := uuid.New()
	seats := 7

	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{text: "ok"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 0}}
	st := newFakeStore()
	st.conflictsLeft = 1
	st.conflictIntent = &criteria.Intent{
		ChatID:   chatID,
		Criteria: criteria.Criteria{Seats: &seats},
		Version:  1,
	}

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "toyota")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	// the retry merged against the concurrent writer's intent, so the
	// committed criteria are announced again before the terminal event
	assert.Equal(t, []EventType{
		EventCriteria, EventResults, EventCriteria, EventTitle, EventDone,
	}, eventTypes(events))

	require.NotNil(t, events[0].Criteria)
	assert.Nil(t, events[0].Criteria.Seats)

	require.NotNil(t, events[2].Criteria)
	require.NotNil(t, events[2].Criteria.Seats)
	assert.Equal(t, 7, *events[2].Criteria.Seats)
	require.NotNil(t, events[2].Criteria.Brand)
	assert.Equal(t, "Toyota", *events[2].Criteria.Brand)

	assert.Equal(t, int64(2), st.intent(chatID).Version)
}

func TestMergeConflictTwiceFails(t *testing.T) {
	chatID := uuid.New()

	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{text: "ok"}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 0}}
	st := newFakeStore()
	st.conflictsLeft = 2

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "toyota")
	require.NoError(t, err)

	events := collectEvents(t, sess)

	last := events[len(events)-1]
	assert.Equal(t, EventError, last.Type)
	assert.Equal(t, CodeMergeConflict, last.ErrorKind)
}

func TestChatTitleTruncatesOnRuneBoundary(t *testing.T) {
	brand := strings.Repeat("ё", 80)
	title := chatTitle(criteria.Criteria{Brand: &brand})

	assert.True(t, utf8.ValidString(title))
	assert.Equal(t, maxTitleLength, utf8.RuneCountInString(title))

	short := "suv"
	assert.Equal(t, "body_style=suv", chatTitle(criteria.Criteria{BodyStyle: &short}))
}

func TestClientCancelKeepsPartialAndIntent(t *testing.T) {
	chatID := uuid.New()

	block := make(chan struct{})
	extractor := &fakeExtractor{ext: &criteria.Extraction{Brand: criteria.Set("Toyota")}}
	composer := &fakeComposer{block: block}
	searcher := &fakeSearcher{result: &inventory.SearchResult{Items: []inventory.Car{}, TotalCount: 1}}
	st := newFakeStore()

	svc := newTestService(extractor, composer, searcher, st)

	sess, err := svc.ProcessMessage(context.Background(), chatID, "toyota")
	require.NoError(t, err)

	// wait for the compose suspension point, then disconnect
	require.Eventually(t, func() bool {
		return composer.input().UserText != ""
	}, 2*time.Second, 10*time.Millisecond)

	sess.Cancel(errors.New("client gone"))

	collectEvents(t, sess)

	// the merge succeeded before composition, so it is still committed
	require.Eventually(t, func() bool {
		return st.intent(chatID).Version == 1
	}, 2*time.Second, 10*time.Millisecond)
}
