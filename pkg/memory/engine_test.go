package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeDurableStore is an append-capable Store fake for engine tests.
type fakeDurableStore struct {
	mu         sync.Mutex
	records    map[string]*ConversationRecord
	failAppend bool
	appends    int
}

func newFakeDurableStore() *fakeDurableStore {
	return &fakeDurableStore{records: make(map[string]*ConversationRecord)}
}

func (s *fakeDurableStore) Append(ctx context.Context, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failAppend {
		return ErrStoreUnavailable
	}
	id := RecordID(turn.UserID, turn.ConversationID)
	rec, ok := s.records[id]
	now := time.Now()
	if !ok {
		rec = &ConversationRecord{
			ID:             id,
			UserID:         turn.UserID,
			ConversationID: turn.ConversationID,
			ChatID:         turn.ChatID,
			CreatedAt:      now,
		}
		s.records[id] = rec
	}
	rec.Messages = append(rec.Messages, Message{
		Role:      turn.Role,
		Content:   turn.Content,
		Timestamp: now,
		Embedding: turn.Embedding,
	})
	rec.Metadata.MessageCount++
	rec.Version++
	rec.UpdatedAt = now
	return nil
}

func (s *fakeDurableStore) Get(ctx context.Context, userID, conversationID string) (*ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[RecordID(userID, conversationID)]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *fakeDurableStore) QueryRecent(ctx context.Context, userID string, limit int) ([]*ConversationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ConversationRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastUpdated().Equal(out[j].LastUpdated()) {
			return out[i].LastUpdated().After(out[j].LastUpdated())
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeDurableStore) DeleteAll(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for id, rec := range s.records {
		if rec.UserID == userID {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *fakeDurableStore) Close() error { return nil }

// recordingSink captures engine events.
type recordingSink struct {
	mu      sync.Mutex
	turns   int
	erases  int
	deleted int
}

func (r *recordingSink) TurnRecorded(userID, chatID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns++
}

func (r *recordingSink) UserErased(userID string, deleted int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.erases++
	r.deleted = deleted
}

func testEngine(store Store, embedder Embedder, cache CandidateCache) *Engine {
	cfg := DefaultEngineConfig()
	cfg.Retriever.EmbedTimeout = 200 * time.Millisecond
	cfg.Retriever.TierTimeout = 500 * time.Millisecond
	cfg.Retriever.OverallTimeout = time.Second
	return NewEngine(cfg, store, embedder, cache, nil)
}

func TestEngine_StartStop(t *testing.T) {
	e := testEngine(newFakeDurableStore(), nil, nil)
	ctx := context.Background()

	if e.Started() {
		t.Fatal("engine must not report started before Start")
	}
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !e.Started() {
		t.Fatal("engine must report started")
	}
	if err := e.Start(ctx); err == nil {
		t.Fatal("second Start must fail")
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if e.Started() {
		t.Fatal("engine must not report started after Stop")
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("second Stop must be a no-op: %v", err)
	}
}

func TestEngine_RecordTurnThenBuildContext(t *testing.T) {
	store := newFakeDurableStore()
	e := testEngine(store, nil, nil)
	ctx := context.Background()

	turns := []Turn{
		{UserID: "u1", ChatID: "h1", ConversationID: "c1", Role: RoleUser, Content: "what is the refund policy"},
		{UserID: "u1", ChatID: "h1", ConversationID: "c1", Role: RoleAssistant, Content: "refunds are processed within 14 days"},
	}
	for _, turn := range turns {
		if err := e.RecordTurn(ctx, turn); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}

	block, result := e.BuildContext(ctx, "u1", "h1", "c1", "and for digital goods?")
	if result == nil || len(result.Conversation) != 1 {
		t.Fatalf("expected current conversation in result, got %+v", result)
	}
	if !strings.Contains(block, "Most recent exchange:") {
		t.Errorf("expected short-term section first, got %q", block)
	}
	if !strings.Contains(block, "refunds are processed within 14 days") {
		t.Errorf("expected assistant turn in context, got %q", block)
	}
	if strings.Index(block, "Most recent exchange:") > strings.Index(block, "Current conversation:") {
		t.Error("short-term section must precede durable sections")
	}
}

func TestEngine_RingSurvivesStoreOutage(t *testing.T) {
	store := newFakeDurableStore()
	store.failAppend = true
	e := testEngine(store, nil, nil)
	ctx := context.Background()

	err := e.RecordTurn(ctx, Turn{
		UserID: "u1", ChatID: "h1", ConversationID: "c1",
		Role: RoleUser, Content: "hello",
	})
	if err == nil {
		t.Fatal("expected append error surfaced")
	}

	// The short-term ring was still updated, so context assembly keeps the
	// freshest signal during the outage.
	block, _ := e.BuildContext(ctx, "u1", "h1", "c1", "still there?")
	if !strings.Contains(block, "hello") {
		t.Errorf("expected ring entry in context despite store failure, got %q", block)
	}
}

func TestEngine_RecordTurnValidation(t *testing.T) {
	e := testEngine(newFakeDurableStore(), nil, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		turn Turn
		want error
	}{
		{"missing user", Turn{ChatID: "h1", ConversationID: "c1", Role: RoleUser}, ErrInvalidUserID},
		{"missing chat", Turn{UserID: "u1", ConversationID: "c1", Role: RoleUser}, ErrInvalidChatID},
		{"missing conversation", Turn{UserID: "u1", ChatID: "h1", Role: RoleUser}, ErrInvalidConversationID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := e.RecordTurn(ctx, tc.turn); err != tc.want {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := e.RecordTurn(ctx, Turn{UserID: "u1", ChatID: "h1", ConversationID: "c1", Role: "narrator"}); err == nil {
		t.Error("expected unknown role rejected")
	}
}

func TestEngine_RecordTurnComputesEmbedding(t *testing.T) {
	store := newFakeDurableStore()
	embedder := &fixedEmbedder{vector: []float32{0.2, 0.4, 0.6}}
	e := testEngine(store, embedder, nil)
	ctx := context.Background()

	if err := e.RecordTurn(ctx, Turn{
		UserID: "u1", ChatID: "h1", ConversationID: "c1",
		Role: RoleUser, Content: "embed me",
	}); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	rec, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Messages) != 1 || len(rec.Messages[0].Embedding) != 3 {
		t.Errorf("expected stored message with embedding, got %+v", rec.Messages)
	}
}

func TestEngine_RecordTurnEmbedderFailureIsNonFatal(t *testing.T) {
	store := newFakeDurableStore()
	embedder := &fixedEmbedder{err: context.DeadlineExceeded}
	e := testEngine(store, embedder, nil)
	ctx := context.Background()

	if err := e.RecordTurn(ctx, Turn{
		UserID: "u1", ChatID: "h1", ConversationID: "c1",
		Role: RoleUser, Content: "no vector",
	}); err != nil {
		t.Fatalf("embedder failure must not fail the turn: %v", err)
	}

	rec, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Messages[0].Embedding) != 0 {
		t.Error("expected message stored without embedding")
	}
}

func TestEngine_BuildContextRecencyAcrossChats(t *testing.T) {
	store := newFakeDurableStore()
	e := testEngine(store, nil, nil)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, conv := range []string{"old", "mid", "new"} {
		store.records[RecordID("u1", conv)] = &ConversationRecord{
			ID:             RecordID("u1", conv),
			UserID:         "u1",
			ConversationID: conv,
			ChatID:         "other-" + conv,
			Messages:       []Message{{Role: RoleUser, Content: "topic " + conv}},
			UpdatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
	}

	// No embeddings anywhere: ranking falls back to recency, newest first.
	block, result := e.BuildContext(ctx, "u1", "h-current", "c-current", "hello")
	if len(result.CrossChat) != 3 {
		t.Fatalf("expected 3 cross-chat records, got %d", len(result.CrossChat))
	}
	if result.CrossChat[0].ConversationID != "new" {
		t.Errorf("expected newest record first, got %q", result.CrossChat[0].ConversationID)
	}
	if !strings.Contains(block, "topic new") {
		t.Errorf("expected newest topic rendered, got %q", block)
	}
}

func TestEngine_EraseClearsEverything(t *testing.T) {
	store := newFakeDurableStore()
	cache := newMapCache()
	sink := &recordingSink{}
	e := testEngine(store, nil, cache)
	e.SetEventSink(sink)
	ctx := context.Background()

	for _, conv := range []string{"c1", "c2"} {
		if err := e.RecordTurn(ctx, Turn{
			UserID: "u1", ChatID: "h1", ConversationID: conv,
			Role: RoleUser, Content: "to be erased",
		}); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}
	cache.Set("u1", []*ConversationRecord{{ID: "stale"}})

	deleted, err := e.Erase(ctx, "u1")
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 records deleted, got %d", deleted)
	}
	if _, ok := cache.Get("u1"); ok {
		t.Error("expected candidate cache invalidated")
	}
	if e.ring.Len("u1", "h1") != 0 {
		t.Error("expected ring purged")
	}
	if sink.erases != 1 || sink.deleted != 2 {
		t.Errorf("expected erase event with count 2, got %+v", sink)
	}

	block, result := e.BuildContext(ctx, "u1", "h1", "c1", "anything left?")
	if block != "" || result.TotalFound != 0 {
		t.Errorf("expected empty context after erase, got %q (%d found)", block, result.TotalFound)
	}
}

func TestEngine_EraseRejectsEmptyUser(t *testing.T) {
	e := testEngine(newFakeDurableStore(), nil, nil)
	if _, err := e.Erase(context.Background(), ""); err != ErrInvalidUserID {
		t.Errorf("expected ErrInvalidUserID, got %v", err)
	}
}

func TestEngine_ConcurrentRecordTurn(t *testing.T) {
	store := newFakeDurableStore()
	e := testEngine(store, nil, nil)
	ctx := context.Background()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := RoleUser
			if i%2 == 1 {
				role = RoleAssistant
			}
			if err := e.RecordTurn(ctx, Turn{
				UserID: "u1", ChatID: "h1", ConversationID: "c1",
				Role: role, Content: "concurrent",
			}); err != nil {
				t.Errorf("RecordTurn: %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Messages) != writers {
		t.Errorf("expected %d messages after concurrent appends, got %d", writers, len(rec.Messages))
	}
	if rec.Version != uint64(writers) {
		t.Errorf("expected version %d, got %d", writers, rec.Version)
	}
}
