package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tier labels used for logging, metrics, and trace attributes.
const (
	TierConversation = "conversation"
	TierChat         = "chat"
	TierCrossChat    = "cross_chat"
)

// RetrieverConfig holds tuning knobs for the tiered retriever.
type RetrieverConfig struct {
	// ChatCandidates is the QueryRecent limit feeding the chat tier.
	ChatCandidates int

	// CrossChatCandidates is the QueryRecent limit feeding the cross-chat tier.
	CrossChatCandidates int

	// ChatKeep is the number of ranked records kept in the chat tier.
	ChatKeep int

	// CrossChatKeep is the number of ranked records kept in the cross-chat tier.
	CrossChatKeep int

	// ConversationWindow bounds the message list returned for the current
	// conversation, keeping the most recent messages.
	ConversationWindow int

	// EmbedTimeout bounds the query embedding call.
	EmbedTimeout time.Duration

	// TierTimeout bounds each individual tier query.
	TierTimeout time.Duration

	// OverallTimeout is the ceiling for one Retrieve call.
	OverallTimeout time.Duration
}

// DefaultRetrieverConfig returns limits tuned for sub-second retrieval.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		ChatCandidates:      10,
		CrossChatCandidates: 15,
		ChatKeep:            3,
		CrossChatKeep:       3,
		ConversationWindow:  20,
		EmbedTimeout:        1 * time.Second,
		TierTimeout:         2 * time.Second,
		OverallTimeout:      3 * time.Second,
	}
}

// retrievalRecorder receives retrieval observability events. Implemented by
// the metrics manager; a nil recorder disables recording.
type retrievalRecorder interface {
	RecordTierQuery(tier string, duration time.Duration, degraded bool)
	RecordCandidateCache(hit bool)
	RecordEmbedding(duration time.Duration, failed bool)
}

type nopRetrievalRecorder struct{}

func (nopRetrievalRecorder) RecordTierQuery(string, time.Duration, bool) {}
func (nopRetrievalRecorder) RecordCandidateCache(bool)                  {}
func (nopRetrievalRecorder) RecordEmbedding(time.Duration, bool)        {}

// TieredRetriever executes the three tier lookups concurrently and ranks each
// tier's candidates. Retrieval never fails the surrounding chat turn: a
// degraded tier contributes an empty slice instead of an error.
type TieredRetriever struct {
	store    Store
	embedder Embedder
	cache    CandidateCache
	cfg      RetrieverConfig
	logger   memLogger
	recorder retrievalRecorder
	tracer   trace.Tracer
}

// NewTieredRetriever creates a retriever over the given store, embedder, and
// candidate cache. Embedder may be nil when embeddings are disabled.
func NewTieredRetriever(store Store, embedder Embedder, cache CandidateCache, cfg RetrieverConfig, logger memLogger) *TieredRetriever {
	if logger == nil {
		logger = &nopLogger{}
	}
	return &TieredRetriever{
		store:    store,
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		recorder: nopRetrievalRecorder{},
		tracer:   otel.Tracer("recallhub/memory"),
	}
}

// SetRecorder wires an observability recorder. Must be called before Retrieve.
func (t *TieredRetriever) SetRecorder(r retrievalRecorder) {
	if r != nil {
		t.recorder = r
	}
}

// Retrieve runs the three tier queries for a new user message and returns the
// ranked result. The call itself never returns an error; individual tier
// failures degrade to empty slices.
func (t *TieredRetriever) Retrieve(ctx context.Context, userID, chatID, conversationID, queryText string) *TierResult {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.OverallTimeout)
	defer cancel()

	ctx, span := t.tracer.Start(ctx, "memory.retrieve",
		trace.WithAttributes(attribute.String("user_id", userID)))
	defer span.End()

	// The query embedding is only needed for ranking, so it runs alongside
	// the candidate fetches.
	embedCh := make(chan []float32, 1)
	go func() {
		embedCh <- t.embedQuery(ctx, queryText)
	}()

	var (
		wg          sync.WaitGroup
		convRecord  *ConversationRecord
		chatCands   []*ConversationRecord
		crossCands  []*ConversationRecord
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		convRecord = t.fetchConversation(ctx, userID, conversationID)
	}()
	go func() {
		defer wg.Done()
		chatCands = t.fetchChatCandidates(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		crossCands = t.fetchCrossChatCandidates(ctx, userID)
	}()
	wg.Wait()

	queryEmbedding := <-embedCh

	result := &TierResult{}

	if convRecord != nil {
		result.Conversation = []*ConversationRecord{trimRecord(convRecord, t.cfg.ConversationWindow)}
	}

	chatTier := filterRecords(chatCands, func(r *ConversationRecord) bool {
		return r.ChatID == chatID && r.ConversationID != conversationID
	})
	result.Chat = rankRecords(chatTier, queryEmbedding, t.cfg.ChatKeep)

	crossTier := filterRecords(crossCands, func(r *ConversationRecord) bool {
		return r.ChatID != chatID
	})
	result.CrossChat = rankRecords(crossTier, queryEmbedding, t.cfg.CrossChatKeep)

	result.TotalFound = len(result.Conversation) + len(result.Chat) + len(result.CrossChat)

	span.SetAttributes(attribute.Int("total_found", result.TotalFound))
	return result
}

// embedQuery computes the query embedding, degrading to an empty vector on
// any failure or timeout.
func (t *TieredRetriever) embedQuery(ctx context.Context, text string) []float32 {
	if t.embedder == nil || text == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.EmbedTimeout)
	defer cancel()

	start := time.Now()
	vec, err := t.embedder.Embed(ctx, text)
	t.recorder.RecordEmbedding(time.Since(start), err != nil)
	if err != nil {
		t.logger.Warn("query embedding failed, ranking falls back to recency", "error", err)
		return nil
	}
	return vec
}

func (t *TieredRetriever) fetchConversation(ctx context.Context, userID, conversationID string) *ConversationRecord {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
	defer cancel()

	start := time.Now()
	record, err := t.store.Get(ctx, userID, conversationID)
	if err != nil {
		degraded := err != ErrNotFound
		t.recorder.RecordTierQuery(TierConversation, time.Since(start), degraded)
		if degraded {
			t.logger.Warn("conversation tier degraded", "user_id", userID, "error", err)
		}
		return nil
	}
	t.recorder.RecordTierQuery(TierConversation, time.Since(start), false)
	return record
}

func (t *TieredRetriever) fetchChatCandidates(ctx context.Context, userID string) []*ConversationRecord {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
	defer cancel()

	start := time.Now()
	records, err := t.store.QueryRecent(ctx, userID, t.cfg.ChatCandidates)
	if err != nil {
		t.recorder.RecordTierQuery(TierChat, time.Since(start), true)
		t.logger.Warn("chat tier degraded", "user_id", userID, "error", err)
		return nil
	}
	t.recorder.RecordTierQuery(TierChat, time.Since(start), false)
	return records
}

// fetchCrossChatCandidates serves the broad per-user candidate set from the
// cache when fresh, otherwise refreshes it from the store. Staleness up to
// the cache TTL is accepted.
func (t *TieredRetriever) fetchCrossChatCandidates(ctx context.Context, userID string) []*ConversationRecord {
	if t.cache != nil {
		if records, ok := t.cache.Get(userID); ok {
			t.recorder.RecordCandidateCache(true)
			return records
		}
		t.recorder.RecordCandidateCache(false)
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.TierTimeout)
	defer cancel()

	start := time.Now()
	records, err := t.store.QueryRecent(ctx, userID, t.cfg.CrossChatCandidates)
	if err != nil {
		t.recorder.RecordTierQuery(TierCrossChat, time.Since(start), true)
		t.logger.Warn("cross-chat tier degraded", "user_id", userID, "error", err)
		return nil
	}
	t.recorder.RecordTierQuery(TierCrossChat, time.Since(start), false)

	if t.cache != nil {
		t.cache.Set(userID, records)
	}
	return records
}

// trimRecord returns a copy of the record with its message list bounded to
// the most recent window entries, preserving original order. The stored
// record is never mutated.
func trimRecord(record *ConversationRecord, window int) *ConversationRecord {
	if window <= 0 || len(record.Messages) <= window {
		return record
	}
	trimmed := *record
	trimmed.Messages = make([]Message, window)
	copy(trimmed.Messages, record.Messages[len(record.Messages)-window:])
	return &trimmed
}

func filterRecords(records []*ConversationRecord, keep func(*ConversationRecord) bool) []*ConversationRecord {
	var out []*ConversationRecord
	for _, r := range records {
		if r == nil || r.UserID == "" || r.ConversationID == "" {
			// Partially corrupt documents are skipped, not fatal.
			continue
		}
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// rankRecords orders candidates by relevance and keeps the top-N. With a
// usable query embedding and at least one candidate embedding, relevance is
// the maximum cosine similarity between the query and any single message of
// the record; otherwise ranking falls back to recency. Ties break by
// UpdatedAt descending, then ConversationID ascending for determinism.
func rankRecords(records []*ConversationRecord, queryEmbedding []float32, keep int) []*ConversationRecord {
	if len(records) == 0 || keep <= 0 {
		return nil
	}

	ranked := make([]*ConversationRecord, len(records))
	copy(ranked, records)

	if len(queryEmbedding) > 0 && anyEmbedding(ranked) {
		scores := make(map[string]float64, len(ranked))
		for _, r := range ranked {
			scores[r.ID] = maxSimilarity(queryEmbedding, r)
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
			if si != sj {
				return si > sj
			}
			return lessByRecency(ranked[i], ranked[j])
		})
	} else {
		sort.SliceStable(ranked, func(i, j int) bool {
			return lessByRecency(ranked[i], ranked[j])
		})
	}

	if keep < len(ranked) {
		ranked = ranked[:keep]
	}
	return ranked
}

func lessByRecency(a, b *ConversationRecord) bool {
	au, bu := a.LastUpdated(), b.LastUpdated()
	if !au.Equal(bu) {
		return au.After(bu)
	}
	return a.ConversationID < b.ConversationID
}

func anyEmbedding(records []*ConversationRecord) bool {
	for _, r := range records {
		for i := range r.Messages {
			if len(r.Messages[i].Embedding) > 0 {
				return true
			}
		}
	}
	return false
}

// maxSimilarity scores a record by its single most similar message. A lone
// strongly relevant message should surface the whole record, so the maximum
// is used rather than an average.
func maxSimilarity(query []float32, record *ConversationRecord) float64 {
	best := 0.0
	for i := range record.Messages {
		emb := record.Messages[i].Embedding
		if len(emb) == 0 {
			continue
		}
		if sim := cosineSimilarity(query, emb); sim > best {
			best = sim
		}
	}
	return best
}

// cosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched lengths or a zero-norm vector yield 0, never NaN.
func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}
