// Package memory implements the hierarchical conversation memory engine for
// Recallhub: durable recording of chat turns, tiered retrieval of historical
// context under a latency budget, and assembly of a bounded context block for
// prompt injection.
package memory

import (
	"context"
	"errors"
)

// Sentinel errors for the memory system.
var (
	ErrInvalidUserID         = errors.New("memory: invalid user ID")
	ErrInvalidConversationID = errors.New("memory: invalid conversation ID")
	ErrInvalidChatID         = errors.New("memory: invalid chat ID")
	ErrInvalidRole           = errors.New("memory: invalid role")
	ErrNotFound              = errors.New("memory: record not found")
	ErrStoreUnavailable      = errors.New("memory: store unavailable")
	ErrConflict              = errors.New("memory: concurrent append conflict")
)

// Store is the durable conversation store. One record exists per
// (user, conversation); the append path is its only writer.
type Store interface {
	// Append records one turn, creating the conversation record on first use.
	Append(ctx context.Context, turn Turn) error

	// Get returns the record for a conversation, or ErrNotFound.
	Get(ctx context.Context, userID, conversationID string) (*ConversationRecord, error)

	// QueryRecent returns up to limit records for the user, most recently
	// updated first.
	QueryRecent(ctx context.Context, userID string, limit int) ([]*ConversationRecord, error)

	// DeleteAll erases every record owned by the user and returns the count.
	DeleteAll(ctx context.Context, userID string) (int, error)

	// Close releases backend resources.
	Close() error
}

// Embedder converts text to a fixed-dimensionality vector. A disabled or
// failing embedder yields an empty vector; ranking must stay total either way.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// CandidateCache memoizes the broad per-user candidate set consulted by the
// cross-chat tier. Entries expire by TTL; Invalidate is only called on user
// erasure.
type CandidateCache interface {
	Get(userID string) ([]*ConversationRecord, bool)
	Set(userID string, records []*ConversationRecord)
	Invalidate(userID string)
	Close() error
}
