package memory

import (
	"fmt"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the two known values.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one turn inside a conversation record.
type Message struct {
	// ID is the unique message identifier.
	ID string `json:"id"`

	// Role is the author of the message.
	Role Role `json:"role"`

	// Content is the raw message text.
	Content string `json:"content"`

	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Embedding is the semantic vector for this message.
	// Empty when the embedding gateway was disabled or unavailable.
	Embedding []float32 `json:"embedding,omitempty"`
}

// RecordMetadata holds monotonically updated counters for a record.
// No strict consistency is required across concurrent readers.
type RecordMetadata struct {
	MessageCount       int     `json:"message_count"`
	TokenCountEstimate int     `json:"token_count_estimate"`
	Importance         float64 `json:"importance"`
	AccessCount        int     `json:"access_count"`
}

// ConversationRecord is the durable unit of storage: one document per
// (user, conversation). Messages are append-only; the retrieval path never
// reorders or truncates them in place.
type ConversationRecord struct {
	// ID is the composite key user:conversation.
	ID string `json:"id"`

	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`

	// ChatID groups conversations belonging to the same chat session.
	// Immutable after creation.
	ChatID string `json:"chat_id"`

	// Messages is the ordered, append-only message sequence.
	Messages []Message `json:"messages"`

	Metadata RecordMetadata `json:"metadata"`

	// Version is the optimistic-concurrency token bumped on every append.
	Version uint64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordID builds the composite document key for a (user, conversation) pair.
func RecordID(userID, conversationID string) string {
	return fmt.Sprintf("%s:%s", userID, conversationID)
}

// LastUpdated returns UpdatedAt, falling back to CreatedAt when unset.
func (r *ConversationRecord) LastUpdated() time.Time {
	if r.UpdatedAt.IsZero() {
		return r.CreatedAt
	}
	return r.UpdatedAt
}

// Turn is one logical write against the durable store.
type Turn struct {
	UserID         string `json:"user_id"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`
	Content        string `json:"content"`
	Role           Role   `json:"role"`

	// TokenEstimate is the caller-supplied token count for the content.
	TokenEstimate int `json:"token_estimate"`

	// Embedding is the optional pre-computed vector for the content.
	Embedding []float32 `json:"embedding,omitempty"`
}

// Validate checks the identifying fields of a turn.
func (t Turn) Validate() error {
	if t.UserID == "" {
		return ErrInvalidUserID
	}
	if t.ChatID == "" {
		return ErrInvalidChatID
	}
	if t.ConversationID == "" {
		return ErrInvalidConversationID
	}
	if !t.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, t.Role)
	}
	return nil
}

// TierResult is the combined output of one retrieval call: three ordered
// candidate sets plus a total count. Ephemeral, recomputed per request.
type TierResult struct {
	// Conversation holds the current conversation's record, if any.
	Conversation []*ConversationRecord `json:"conversation"`

	// Chat holds ranked sibling conversations from the same chat.
	Chat []*ConversationRecord `json:"chat"`

	// CrossChat holds ranked conversations from the user's other chats.
	CrossChat []*ConversationRecord `json:"cross_chat"`

	// TotalFound is the sum of the three tier sizes.
	TotalFound int `json:"total_found"`
}

// ShortTermEntry is one raw message held in the short-term ring buffer.
type ShortTermEntry struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
