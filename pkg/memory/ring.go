package memory

import (
	"strings"
	"sync"
)

// DefaultRingCapacity holds three user/assistant exchanges.
const DefaultRingCapacity = 6

// ShortTermRing keeps the most recent raw messages per (user, chat) pair in
// process memory. It is a latency optimization, not a durability guarantee:
// contents are lost on restart and never consult the durable store.
type ShortTermRing struct {
	mu       sync.RWMutex
	capacity int
	rings    map[string][]ShortTermEntry
}

// NewShortTermRing creates a ring buffer set with the given per-key capacity.
func NewShortTermRing(capacity int) *ShortTermRing {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &ShortTermRing{
		capacity: capacity,
		rings:    make(map[string][]ShortTermEntry),
	}
}

func ringKey(userID, chatID string) string {
	return userID + "\x00" + chatID
}

// Push appends an entry, evicting the oldest once capacity is exceeded.
func (s *ShortTermRing) Push(userID, chatID string, entry ShortTermEntry) {
	key := ringKey(userID, chatID)

	s.mu.Lock()
	defer s.mu.Unlock()

	ring := append(s.rings[key], entry)
	if len(ring) > s.capacity {
		ring = ring[len(ring)-s.capacity:]
	}
	s.rings[key] = ring
}

// Peek returns up to capacity entries, oldest first. The returned slice is a
// copy and safe to retain.
func (s *ShortTermRing) Peek(userID, chatID string) []ShortTermEntry {
	key := ringKey(userID, chatID)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ring := s.rings[key]
	if len(ring) == 0 {
		return nil
	}
	out := make([]ShortTermEntry, len(ring))
	copy(out, ring)
	return out
}

// DeleteUser drops every ring owned by the user.
func (s *ShortTermRing) DeleteUser(userID string) {
	prefix := userID + "\x00"

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.rings {
		if strings.HasPrefix(key, prefix) {
			delete(s.rings, key)
		}
	}
}

// Len returns the number of entries currently held for a (user, chat) pair.
func (s *ShortTermRing) Len(userID, chatID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rings[ringKey(userID, chatID)])
}
