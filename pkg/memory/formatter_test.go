package memory

import (
	"strings"
	"testing"
	"time"
)

func testFormatter() *Formatter {
	return NewFormatter(DefaultFormatterConfig())
}

func TestFormat_EmptyResultYieldsEmptyString(t *testing.T) {
	f := testFormatter()

	if got := f.Format(nil); got != "" {
		t.Errorf("expected empty string for nil result, got %q", got)
	}
	if got := f.Format(&TierResult{}); got != "" {
		t.Errorf("expected empty string for empty tiers, got %q", got)
	}
}

func TestFormat_CurrentConversationSection(t *testing.T) {
	f := testFormatter()
	now := time.Now()

	var msgs []Message
	for _, content := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		msgs = append(msgs, Message{Role: RoleUser, Content: content})
	}
	result := &TierResult{
		Conversation: []*ConversationRecord{record("u1", "h1", "c1", now, msgs...)},
	}

	out := f.Format(result)
	if !strings.HasPrefix(out, "Current conversation:") {
		t.Fatalf("expected conversation header, got %q", out)
	}
	if strings.Contains(out, "one") || strings.Contains(out, "two") {
		t.Error("expected only the last 5 messages rendered")
	}
	for _, want := range []string{"three", "four", "five", "six", "seven"} {
		if !strings.Contains(out, "user: "+want) {
			t.Errorf("expected message %q in output", want)
		}
	}
	// Original order preserved.
	if strings.Index(out, "three") > strings.Index(out, "seven") {
		t.Error("expected original message order")
	}
}

func TestFormat_SnippetSectionsAndTruncation(t *testing.T) {
	f := testFormatter()
	now := time.Now()

	long := strings.Repeat("x", 300)
	result := &TierResult{
		Chat: []*ConversationRecord{
			record("u1", "h1", "c2", now, Message{Role: RoleUser, Content: long}),
		},
		CrossChat: []*ConversationRecord{
			record("u1", "h2", "c3", now, Message{Role: RoleUser, Content: long}),
		},
	}

	out := f.Format(result)
	if !strings.Contains(out, "Recent chat history:") {
		t.Fatal("expected chat history section")
	}
	if !strings.Contains(out, "Related previous conversations:") {
		t.Fatal("expected related conversations section")
	}

	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		snippet := strings.TrimPrefix(line, "- ")
		if !strings.HasSuffix(snippet, "...") {
			t.Errorf("expected truncated snippet to end with ellipsis: %q", snippet)
		}
		if len(snippet) > 120+3 {
			t.Errorf("snippet exceeds budget: %d chars", len(snippet))
		}
	}
}

func TestFormat_SectionLimits(t *testing.T) {
	f := testFormatter()
	now := time.Now()

	var chat, cross []*ConversationRecord
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		chat = append(chat, record("u1", "h1", "chat-"+id, now, Message{Content: "chat " + id}))
		cross = append(cross, record("u1", "h2", "cross-"+id, now, Message{Content: "cross " + id}))
	}

	out := f.Format(&TierResult{Chat: chat, CrossChat: cross})

	if strings.Count(out, "chat ") != 3 {
		t.Errorf("expected 3 chat snippets, got %d", strings.Count(out, "chat "))
	}
	if strings.Count(out, "cross ") != 2 {
		t.Errorf("expected 2 cross-chat snippets, got %d", strings.Count(out, "cross "))
	}
}

func TestFormat_OmitsEmptySections(t *testing.T) {
	f := testFormatter()
	now := time.Now()

	out := f.Format(&TierResult{
		Chat: []*ConversationRecord{record("u1", "h1", "c2", now, Message{Content: "only chat"})},
	})

	if strings.Contains(out, "Current conversation:") {
		t.Error("empty tier 1 must not emit a header")
	}
	if strings.Contains(out, "Related previous conversations:") {
		t.Error("empty tier 3 must not emit a header")
	}
	if !strings.Contains(out, "only chat") {
		t.Error("expected chat snippet present")
	}
	if out != strings.TrimSpace(out) {
		t.Error("output must be trimmed")
	}
}

func TestFormat_AllMessagesSanitizeEmptyOmitsHeader(t *testing.T) {
	f := testFormatter()
	now := time.Now()

	out := f.Format(&TierResult{
		Conversation: []*ConversationRecord{record("u1", "h1", "c1", now,
			Message{Role: RoleUser, Content: "<system></system>"},
			Message{Role: RoleAssistant, Content: "   "},
		)},
	})

	if out != "" {
		t.Errorf("expected empty output when every message sanitizes away, got %q", out)
	}
}

func TestSanitize_StripsMarkupBeforeTruncation(t *testing.T) {
	in := "<system>secret</system> hello <context>ctx</context> world"
	out := Sanitize(in)
	if strings.Contains(out, "<system>") || strings.Contains(out, "</context>") {
		t.Errorf("expected markup stripped, got %q", out)
	}
	if !strings.Contains(out, "hello") || !strings.Contains(out, "world") {
		t.Errorf("expected content preserved, got %q", out)
	}
}

func TestFormat_Deterministic(t *testing.T) {
	f := testFormatter()
	now := time.Date(2026, 2, 14, 9, 0, 0, 0, time.UTC)

	result := &TierResult{
		Conversation: []*ConversationRecord{
			record("u1", "h1", "c1", now, Message{Role: RoleUser, Content: "hi"}),
		},
		Chat: []*ConversationRecord{
			record("u1", "h1", "c2", now, Message{Role: RoleUser, Content: "sibling"}),
		},
	}

	first := f.Format(result)
	for i := 0; i < 10; i++ {
		if got := f.Format(result); got != first {
			t.Fatal("Format must be deterministic for identical inputs")
		}
	}
}

func TestTruncate_RuneSafe(t *testing.T) {
	s := strings.Repeat("é", 50)
	out := truncate(s, 10)
	if !strings.HasSuffix(out, "...") {
		t.Fatalf("expected ellipsis, got %q", out)
	}
	if got := len([]rune(strings.TrimSuffix(out, "..."))); got != 10 {
		t.Errorf("expected 10 runes kept, got %d", got)
	}
}
