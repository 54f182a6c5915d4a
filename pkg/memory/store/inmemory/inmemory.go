// Package inmemory provides a map-backed conversation store for tests and
// single-process development runs.
package inmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/recallhub/recallhub/pkg/memory"
)

// Store implements memory.Store with an in-process map. Records are deep
// copied on the way in and out so callers can never mutate stored state.
type Store struct {
	mu      sync.RWMutex
	records map[string]*memory.ConversationRecord
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]*memory.ConversationRecord),
	}
}

// Append performs the create-or-append under the store lock, so the
// read-modify-write race of document stores does not occur here.
func (s *Store) Append(ctx context.Context, turn memory.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	id := memory.RecordID(turn.UserID, turn.ConversationID)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		record = &memory.ConversationRecord{
			ID:             id,
			UserID:         turn.UserID,
			ConversationID: turn.ConversationID,
			ChatID:         turn.ChatID,
			CreatedAt:      now,
		}
		s.records[id] = record
	}

	record.Messages = append(record.Messages, memory.Message{
		ID:        uuid.New().String(),
		Role:      turn.Role,
		Content:   turn.Content,
		Timestamp: now,
		Embedding: turn.Embedding,
	})
	record.Metadata.MessageCount++
	record.Metadata.TokenCountEstimate += turn.TokenEstimate
	record.Version++
	record.UpdatedAt = now
	return nil
}

// Get returns a copy of the record, or memory.ErrNotFound.
func (s *Store) Get(ctx context.Context, userID, conversationID string) (*memory.ConversationRecord, error) {
	if userID == "" {
		return nil, memory.ErrInvalidUserID
	}
	if conversationID == "" {
		return nil, memory.ErrInvalidConversationID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[memory.RecordID(userID, conversationID)]
	if !ok {
		return nil, memory.ErrNotFound
	}
	return cloneRecord(record), nil
}

// QueryRecent returns up to limit of the user's records, most recently
// updated first.
func (s *Store) QueryRecent(ctx context.Context, userID string, limit int) ([]*memory.ConversationRecord, error) {
	if userID == "" {
		return nil, memory.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*memory.ConversationRecord
	for _, record := range s.records {
		if record.UserID == userID {
			records = append(records, cloneRecord(record))
		}
	}

	sort.Slice(records, func(i, j int) bool {
		iu, ju := records[i].LastUpdated(), records[j].LastUpdated()
		if !iu.Equal(ju) {
			return iu.After(ju)
		}
		return records[i].ConversationID < records[j].ConversationID
	})

	if limit < len(records) {
		records = records[:limit]
	}
	return records, nil
}

// DeleteAll removes every record owned by the user.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, memory.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, record := range s.records {
		if record.UserID == userID {
			delete(s.records, id)
			count++
		}
	}
	return count, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

func cloneRecord(record *memory.ConversationRecord) *memory.ConversationRecord {
	clone := *record
	clone.Messages = make([]memory.Message, len(record.Messages))
	copy(clone.Messages, record.Messages)
	return &clone
}
