package eventbus

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestIntegration_PublishConsumeOrderingAndDedup(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(AllSubjects(), 16)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := publisher.PublishMemoryEvent(ctx, MemoryEvent{
			EventType:      EventTurnRecorded,
			UserID:         "u1",
			ChatID:         "h1",
			ConversationID: "c1",
			Payload: TurnRecordedPayload{
				UserID:         "u1",
				ChatID:         "h1",
				ConversationID: "c1",
			},
		})
		if err != nil {
			t.Fatalf("PublishMemoryEvent() error = %v", err)
		}
	}

	sequences := make([]int64, 0, 3)
	var firstRaw []byte
	for len(sequences) < 3 {
		select {
		case msg := <-sub.C():
			if firstRaw == nil {
				firstRaw = append([]byte(nil), msg.Payload...)
			}
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			sequences = append(sequences, env.Sequence)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for messages, got=%d", len(sequences))
		}
	}
	if sequences[0] != 1 || sequences[1] != 2 || sequences[2] != 3 {
		t.Fatalf("expected sequence [1 2 3], got %v", sequences)
	}

	consumer := NewEnvelopeConsumer(nil)
	_, _, duplicate, err := consumer.DecodeAndValidate(firstRaw)
	if err != nil {
		t.Fatalf("DecodeAndValidate() error = %v", err)
	}
	if duplicate {
		t.Fatal("expected first decode not duplicate")
	}

	_, _, duplicate, err = consumer.DecodeAndValidate(firstRaw)
	if err != nil {
		t.Fatalf("DecodeAndValidate() error = %v", err)
	}
	if !duplicate {
		t.Fatal("expected second decode duplicate=true")
	}
}

func TestIntegration_ErasureSequencedAfterTurns(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(UserWildcardSubject("u1"), 16)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}

	ctx := context.Background()
	if _, err := publisher.PublishMemoryEvent(ctx, MemoryEvent{
		EventType: EventTurnRecorded, UserID: "u1", ChatID: "h1", ConversationID: "c1",
		Payload: TurnRecordedPayload{UserID: "u1", ChatID: "h1", ConversationID: "c1"},
	}); err != nil {
		t.Fatalf("PublishMemoryEvent() error = %v", err)
	}
	erased, err := publisher.PublishMemoryEvent(ctx, MemoryEvent{
		EventType: EventUserErased, UserID: "u1",
		Payload: UserErasedPayload{UserID: "u1", Deleted: 3},
	})
	if err != nil {
		t.Fatalf("PublishMemoryEvent() error = %v", err)
	}

	// Both events share the per-user ordering key, so erasure sequences
	// strictly after the turn.
	if erased.Sequence != 2 {
		t.Fatalf("expected erase sequence 2, got %d", erased.Sequence)
	}
	if erased.OrderingKey != "u1" {
		t.Fatalf("expected per-user ordering key, got %q", erased.OrderingKey)
	}
}

func TestSink_PublishesEngineEvents(t *testing.T) {
	bus := NewMemoryBus()
	sub, err := bus.Subscribe(AllSubjects(), 16)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	publisher, err := NewPublisher("node-1", bus, DefaultRetryConfig(), nil)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	sink := NewSink(publisher, nil)

	sink.TurnRecorded("u1", "h1", "c1")
	sink.UserErased("u1", 2)

	types := map[string]Envelope{}
	for len(types) < 2 {
		select {
		case msg := <-sub.C():
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				t.Fatalf("json.Unmarshal() error = %v", err)
			}
			types[env.EventType] = env
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for sink events, got=%d", len(types))
		}
	}

	if _, ok := types[EventTurnRecorded]; !ok {
		t.Error("expected turn_recorded event")
	}
	erased, ok := types[EventUserErased]
	if !ok {
		t.Fatal("expected user_erased event")
	}
	var payload UserErasedPayload
	if err := json.Unmarshal(erased.Payload, &payload); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if payload.Deleted != 2 {
		t.Errorf("expected deleted count 2, got %d", payload.Deleted)
	}
}
