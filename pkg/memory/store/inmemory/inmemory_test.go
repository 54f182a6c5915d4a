package inmemory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/recallhub/recallhub/pkg/memory"
)

func turn(userID, chatID, conversationID, content string) memory.Turn {
	return memory.Turn{
		UserID:         userID,
		ChatID:         chatID,
		ConversationID: conversationID,
		Role:           memory.RoleUser,
		Content:        content,
	}
}

func TestAppendThenGet(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Append(ctx, turn("u1", "h1", "c1", "first")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, turn("u1", "h1", "c1", "second")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Messages) != 2 || rec.Version != 2 || rec.Metadata.MessageCount != 2 {
		t.Errorf("unexpected record state: %+v", rec)
	}

	if _, err := store.Get(ctx, "u1", "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Append(ctx, turn("u1", "h1", "c1", "original")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rec, _ := store.Get(ctx, "u1", "c1")
	rec.Messages[0].Content = "mutated"
	rec.ChatID = "hijacked"

	fresh, _ := store.Get(ctx, "u1", "c1")
	if fresh.Messages[0].Content != "original" || fresh.ChatID != "h1" {
		t.Error("caller mutation leaked into stored record")
	}
}

func TestQueryRecentOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, conv := range []string{"c1", "c2", "c3"} {
		if err := store.Append(ctx, turn("u1", "h1", conv, "hi")); err != nil {
			t.Fatalf("Append: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}
	if err := store.Append(ctx, turn("u2", "h2", "cx", "other")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	records, err := store.QueryRecent(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("QueryRecent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected limit honored, got %d", len(records))
	}
	if records[0].ConversationID != "c3" || records[1].ConversationID != "c2" {
		t.Errorf("expected most recent first, got %q, %q",
			records[0].ConversationID, records[1].ConversationID)
	}
}

func TestDeleteAll(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, conv := range []string{"c1", "c2"} {
		if err := store.Append(ctx, turn("u1", "h1", conv, "bye")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := store.Append(ctx, turn("u2", "h2", "c1", "stays")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deleted, err := store.DeleteAll(ctx, "u1")
	if err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}
	if _, err := store.Get(ctx, "u2", "c1"); err != nil {
		t.Errorf("expected other user untouched: %v", err)
	}
	if deleted, _ := store.DeleteAll(ctx, "u1"); deleted != 0 {
		t.Errorf("expected idempotent delete, got %d", deleted)
	}
}

func TestConcurrentAppend(t *testing.T) {
	store := New()
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Append(ctx, turn("u1", "h1", "c1", "racing")); err != nil {
				t.Errorf("Append: %v", err)
			}
		}()
	}
	wg.Wait()

	rec, err := store.Get(ctx, "u1", "c1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(rec.Messages) != writers || rec.Version != uint64(writers) {
		t.Errorf("expected %d messages at version %d, got %d at %d",
			writers, writers, len(rec.Messages), rec.Version)
	}
}
