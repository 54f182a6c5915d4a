package eventbus

import (
	"context"
	"time"

	"github.com/recallhub/recallhub/pkg/logger"
)

// sinkPublishTimeout bounds one asynchronous sink publish including retries.
const sinkPublishTimeout = 5 * time.Second

// TurnRecordedPayload is the v1 payload for turn_recorded events.
type TurnRecordedPayload struct {
	UserID         string `json:"user_id"`
	ChatID         string `json:"chat_id"`
	ConversationID string `json:"conversation_id"`
}

// UserErasedPayload is the v1 payload for user_erased events.
type UserErasedPayload struct {
	UserID  string `json:"user_id"`
	Deleted int    `json:"deleted"`
}

// Sink adapts the publisher to the memory engine's event hooks. Publishing is
// asynchronous so a slow bus never blocks turn recording.
type Sink struct {
	publisher *Publisher
	logger    logger.Logger
}

// NewSink creates a memory event sink over the publisher.
func NewSink(publisher *Publisher, log logger.Logger) *Sink {
	if log == nil {
		log = logger.Global()
	}
	return &Sink{publisher: publisher, logger: log}
}

// TurnRecorded publishes a turn_recorded event in the background.
func (s *Sink) TurnRecorded(userID, chatID, conversationID string) {
	s.publishAsync(MemoryEvent{
		EventType:      EventTurnRecorded,
		UserID:         userID,
		ChatID:         chatID,
		ConversationID: conversationID,
		Payload: TurnRecordedPayload{
			UserID:         userID,
			ChatID:         chatID,
			ConversationID: conversationID,
		},
	})
}

// UserErased publishes a user_erased event in the background.
func (s *Sink) UserErased(userID string, deleted int) {
	s.publishAsync(MemoryEvent{
		EventType: EventUserErased,
		UserID:    userID,
		Payload: UserErasedPayload{
			UserID:  userID,
			Deleted: deleted,
		},
	})
}

func (s *Sink) publishAsync(event MemoryEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sinkPublishTimeout)
		defer cancel()
		if _, err := s.publisher.PublishMemoryEvent(ctx, event); err != nil {
			s.logger.Warn("memory event publish failed",
				"event_type", event.EventType,
				"user_id", event.UserID,
				"error", err,
			)
		}
	}()
}

// RegisterMemorySchemas registers the v1 payload contracts on a schema router.
func RegisterMemorySchemas(router *SchemaRouter) error {
	if err := router.RegisterPayloadSchema(PayloadSchema{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTurnRecorded,
		Required:      []string{"user_id", "chat_id", "conversation_id"},
	}); err != nil {
		return err
	}
	return router.RegisterPayloadSchema(PayloadSchema{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventUserErased,
		Required:      []string{"user_id", "deleted"},
	})
}
