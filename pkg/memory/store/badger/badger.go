// Package badger provides a Badger-backed implementation of the durable
// conversation store.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/recallhub/recallhub/pkg/memory"
)

// appendRetries bounds the optimistic-concurrency retry loop on the append
// path. Concurrent appends to the same conversation are rare for a
// conversational workload; three attempts absorb duplicate client retries.
const appendRetries = 3

// Config holds configuration for the Badger store.
type Config struct {
	Path             string
	SyncWrites       bool
	ValueLogFileSize int64
}

// Store implements memory.Store using Badger. Each conversation is one JSON
// document; a per-user recency index keyspace serves QueryRecent without
// scanning full documents.
type Store struct {
	db     *badger.DB
	config *Config
}

// New opens the Badger database at the configured path.
func New(config *Config) (*Store, error) {
	opts := badger.DefaultOptions(config.Path)
	opts.SyncWrites = config.SyncWrites
	if config.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = config.ValueLogFileSize
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}

	return &Store{db: db, config: config}, nil
}

// NewWithDB wraps an externally managed Badger handle. Used by tests and by
// deployments sharing one database across subsystems.
func NewWithDB(db *badger.DB) *Store {
	return &Store{db: db}
}

// Key layout:
//
//	conv:{userID}:{conversationID}                        record document
//	conv_index:updated:{userID}:{inverted_ts}:{convID}    recency index
//
// The index timestamp is inverted so a plain ascending prefix iteration
// yields most-recently-updated first.
func recordKey(userID, conversationID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:%s", userID, conversationID))
}

func userRecordPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("conv:%s:", userID))
}

func updatedIndexKey(userID string, updatedAt time.Time, conversationID string) []byte {
	inverted := math.MaxInt64 - updatedAt.UnixNano()
	return []byte(fmt.Sprintf("conv_index:updated:%s:%020d:%s", userID, inverted, conversationID))
}

func userIndexPrefix(userID string) []byte {
	return []byte(fmt.Sprintf("conv_index:updated:%s:", userID))
}

// Append records one turn with a read-modify-write inside a single Badger
// transaction. Badger's SSI conflict detection closes the lost-update window
// between concurrent appends to the same conversation; conflicts are retried.
func (s *Store) Append(ctx context.Context, turn memory.Turn) error {
	if err := turn.Validate(); err != nil {
		return err
	}

	for attempt := 0; attempt < appendRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			return s.appendTxn(txn, turn)
		})
		if err == badger.ErrConflict {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
		}
		return nil
	}
	return memory.ErrConflict
}

func (s *Store) appendTxn(txn *badger.Txn, turn memory.Turn) error {
	now := time.Now().UTC()
	key := recordKey(turn.UserID, turn.ConversationID)

	record := &memory.ConversationRecord{
		ID:             memory.RecordID(turn.UserID, turn.ConversationID),
		UserID:         turn.UserID,
		ConversationID: turn.ConversationID,
		ChatID:         turn.ChatID,
		CreatedAt:      now,
	}

	item, err := txn.Get(key)
	switch {
	case err == badger.ErrKeyNotFound:
		// First message for this conversation.
	case err != nil:
		return err
	default:
		var existing memory.ConversationRecord
		verr := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		})
		if verr == nil && existing.ConversationID != "" {
			// Drop the stale index entry before re-indexing under the new
			// update time.
			if derr := txn.Delete(updatedIndexKey(turn.UserID, existing.LastUpdated(), turn.ConversationID)); derr != nil {
				return derr
			}
			record = &existing
		} else {
			// A document that fails to decode is overwritten as fresh. Its
			// old update time is unrecoverable, so sweep the index for
			// entries pointing at this conversation instead.
			if derr := deleteIndexEntries(txn, turn.UserID, turn.ConversationID); derr != nil {
				return derr
			}
		}
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

	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := txn.Set(key, data); err != nil {
		return err
	}
	return txn.Set(updatedIndexKey(turn.UserID, now, turn.ConversationID), []byte(turn.ConversationID))
}

// deleteIndexEntries removes every recency-index entry that points at the
// conversation.
func deleteIndexEntries(txn *badger.Txn, userID, conversationID string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = userIndexPrefix(userID)
	it := txn.NewIterator(opts)

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			if string(val) == conversationID {
				keys = append(keys, item.KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			it.Close()
			return err
		}
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the conversation record, or memory.ErrNotFound. Documents that
// fail to decode are reported as absent.
func (s *Store) Get(ctx context.Context, userID, conversationID string) (*memory.ConversationRecord, error) {
	if userID == "" {
		return nil, memory.ErrInvalidUserID
	}
	if conversationID == "" {
		return nil, memory.ErrInvalidConversationID
	}

	var record memory.ConversationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(userID, conversationID))
		if err == badger.ErrKeyNotFound {
			return memory.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if uerr := json.Unmarshal(val, &record); uerr != nil {
				return memory.ErrNotFound
			}
			return nil
		})
	})
	if err == memory.ErrNotFound {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}
	return &record, nil
}

// QueryRecent walks the recency index and loads up to limit records,
// most-recently-updated first. Corrupt documents are skipped, not fatal.
func (s *Store) QueryRecent(ctx context.Context, userID string, limit int) ([]*memory.ConversationRecord, error) {
	if userID == "" {
		return nil, memory.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = 10
	}

	var records []*memory.ConversationRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userIndexPrefix(userID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(records) < limit; it.Next() {
			var conversationID string
			if err := it.Item().Value(func(val []byte) error {
				conversationID = string(val)
				return nil
			}); err != nil {
				continue
			}

			item, err := txn.Get(recordKey(userID, conversationID))
			if err != nil {
				continue
			}
			var record memory.ConversationRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			}); err != nil {
				continue
			}
			if record.ConversationID == "" {
				continue
			}
			records = append(records, &record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}
	return records, nil
}

// DeleteAll removes every record and index entry owned by the user in one
// batch and returns the number of records deleted.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, memory.ErrInvalidUserID
	}

	count := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		var keys [][]byte
		for i, prefix := range [][]byte{userRecordPrefix(userID), userIndexPrefix(userID)} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
				if i == 0 {
					// Count record documents only, not index entries.
					count++
				}
			}
			it.Close()
		}

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", memory.ErrStoreUnavailable, err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
