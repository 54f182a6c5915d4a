package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memLogger is the minimal logger interface used by the memory packages.
type memLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// nopLogger is a no-op logger.
type nopLogger struct{}

func (n *nopLogger) Debug(msg string, args ...any) {}
func (n *nopLogger) Info(msg string, args ...any)  {}
func (n *nopLogger) Warn(msg string, args ...any)  {}
func (n *nopLogger) Error(msg string, args ...any) {}

// EventSink receives notifications about memory lifecycle events.
// Implementations must not block.
type EventSink interface {
	TurnRecorded(userID, chatID, conversationID string)
	UserErased(userID string, deleted int)
}

// EngineConfig configures the memory engine.
type EngineConfig struct {
	// RingCapacity bounds each (user, chat) short-term ring.
	RingCapacity int

	// Retriever holds the tiered retriever limits and timeouts.
	Retriever RetrieverConfig

	// Formatter holds the context block budgets.
	Formatter FormatterConfig
}

// DefaultEngineConfig returns the standard engine tuning.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		RingCapacity: DefaultRingCapacity,
		Retriever:    DefaultRetrieverConfig(),
		Formatter:    DefaultFormatterConfig(),
	}
}

// Engine orchestrates the memory subsystem: it owns the short-term ring and
// candidate cache exclusively, reads the durable store through the retriever,
// and appends through RecordTurn.
type Engine struct {
	mu sync.RWMutex

	cfg       EngineConfig
	store     Store
	embedder  Embedder
	cache     CandidateCache
	ring      *ShortTermRing
	retriever *TieredRetriever
	formatter *Formatter
	logger    memLogger
	events    EventSink
	started   bool
}

// NewEngine wires the memory engine. Embedder may be nil (embeddings
// disabled); cache may be nil (every cross-chat lookup hits the store);
// events may be nil.
func NewEngine(cfg EngineConfig, store Store, embedder Embedder, cache CandidateCache, logger memLogger) *Engine {
	if logger == nil {
		logger = &nopLogger{}
	}
	ring := NewShortTermRing(cfg.RingCapacity)
	return &Engine{
		cfg:       cfg,
		store:     store,
		embedder:  embedder,
		cache:     cache,
		ring:      ring,
		retriever: NewTieredRetriever(store, embedder, cache, cfg.Retriever, logger),
		formatter: NewFormatter(cfg.Formatter),
		logger:    logger,
	}
}

// SetEventSink wires an event sink. Must be called before Start.
func (e *Engine) SetEventSink(sink EventSink) {
	e.events = sink
}

// SetRecorder wires a retrieval observability recorder. Must be called
// before Start.
func (e *Engine) SetRecorder(r retrievalRecorder) {
	e.retriever.SetRecorder(r)
}

// Start marks the engine ready. The ring and cache are process-local and
// start empty on every boot.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return fmt.Errorf("memory engine already started")
	}
	e.started = true
	e.logger.Info("memory engine started",
		"ring_capacity", e.cfg.RingCapacity,
		"chat_candidates", e.cfg.Retriever.ChatCandidates,
		"cross_chat_candidates", e.cfg.Retriever.CrossChatCandidates,
	)
	return nil
}

// Stop shuts the engine down and releases cache resources.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started {
		return nil
	}
	e.started = false
	if e.cache != nil {
		if err := e.cache.Close(); err != nil {
			e.logger.Warn("closing candidate cache", "error", err)
		}
	}
	e.logger.Info("memory engine stopped")
	return nil
}

// Started reports whether the engine is running.
func (e *Engine) Started() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.started
}

// BuildContext assembles the context block to inject ahead of a new user
// message. The short-term ring is the cheapest, freshest signal and is read
// before and rendered ahead of any durable-store result. An empty return
// means "inject nothing"; retrieval failures never surface here.
func (e *Engine) BuildContext(ctx context.Context, userID, chatID, conversationID, message string) (string, *TierResult) {
	shortTerm := e.ring.Peek(userID, chatID)

	result := e.retriever.Retrieve(ctx, userID, chatID, conversationID, message)
	formatted := e.formatter.Format(result)

	recent := formatShortTerm(shortTerm)
	switch {
	case recent == "":
		return formatted, result
	case formatted == "":
		return recent, result
	default:
		return strings.TrimSpace(recent + "\n\n" + formatted), result
	}
}

// RecordTurn appends a completed turn to the durable store and pushes it onto
// the short-term ring. A persistence failure is returned for logging by the
// caller but must never block turn completion; the ring is updated regardless
// so the freshest signal survives a store outage.
func (e *Engine) RecordTurn(ctx context.Context, turn Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	if len(turn.Embedding) == 0 && e.embedder != nil {
		embedCtx, cancel := context.WithTimeout(ctx, e.cfg.Retriever.EmbedTimeout)
		vec, err := e.embedder.Embed(embedCtx, turn.Content)
		cancel()
		if err != nil {
			// Stored without an embedding; retrieval degrades to recency
			// for this message.
			e.logger.Warn("turn embedding failed", "user_id", turn.UserID, "error", err)
		} else {
			turn.Embedding = vec
		}
	}

	e.ring.Push(turn.UserID, turn.ChatID, ShortTermEntry{
		ID:        uuid.New().String(),
		Role:      turn.Role,
		Content:   turn.Content,
		Timestamp: time.Now(),
	})

	if err := e.store.Append(ctx, turn); err != nil {
		e.logger.Error("turn append failed",
			"user_id", turn.UserID,
			"conversation_id", turn.ConversationID,
			"error", err,
		)
		return fmt.Errorf("memory: append turn: %w", err)
	}

	if e.events != nil {
		e.events.TurnRecorded(turn.UserID, turn.ChatID, turn.ConversationID)
	}
	return nil
}

// Erase handles a data-subject deletion request: all durable records for the
// user are batch-deleted and the cache and ring are purged as a side effect.
func (e *Engine) Erase(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, ErrInvalidUserID
	}

	deleted, err := e.store.DeleteAll(ctx, userID)

	// Local state is cleared even when the store delete failed partway, so a
	// retry cannot resurrect stale cached candidates.
	if e.cache != nil {
		e.cache.Invalidate(userID)
	}
	e.ring.DeleteUser(userID)

	if err != nil {
		return deleted, fmt.Errorf("memory: erase user: %w", err)
	}

	e.logger.Info("user memory erased", "user_id", userID, "records", deleted)
	if e.events != nil {
		e.events.UserErased(userID, deleted)
	}
	return deleted, nil
}

// formatShortTerm renders ring entries oldest-first, role-tagged, matching
// the current-conversation rendering.
func formatShortTerm(entries []ShortTermEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Most recent exchange:\n")
	wrote := false
	for _, entry := range entries {
		content := Sanitize(entry.Content)
		if content == "" {
			continue
		}
		b.WriteString(string(entry.Role))
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
		wrote = true
	}
	if !wrote {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}
