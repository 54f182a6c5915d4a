package memory

import (
	"strings"
)

// FormatterConfig bounds the rendered context block.
type FormatterConfig struct {
	// ConversationMessages is the number of trailing current-conversation
	// messages rendered.
	ConversationMessages int

	// ChatRecords and ChatSnippetLen bound the "recent chat history" section.
	ChatRecords    int
	ChatSnippetLen int

	// CrossChatRecords and CrossChatSnippetLen bound the "related previous
	// conversations" section.
	CrossChatRecords    int
	CrossChatSnippetLen int
}

// DefaultFormatterConfig returns the standard context block budgets.
func DefaultFormatterConfig() FormatterConfig {
	return FormatterConfig{
		ConversationMessages: 5,
		ChatRecords:          3,
		ChatSnippetLen:       120,
		CrossChatRecords:     2,
		CrossChatSnippetLen:  100,
	}
}

// Formatter renders a TierResult into a size-bounded text block. Format is a
// pure function: no I/O, deterministic for identical inputs.
type Formatter struct {
	cfg FormatterConfig
}

// NewFormatter creates a formatter with the given budgets.
func NewFormatter(cfg FormatterConfig) *Formatter {
	return &Formatter{cfg: cfg}
}

// markupReplacer strips the structural tags that prompt assembly and
// providers use, so truncation can never split a tag in half.
var markupReplacer = strings.NewReplacer(
	"<system>", "", "</system>", "",
	"<context>", "", "</context>", "",
	"<memory>", "", "</memory>", "",
	"<user>", "", "</user>", "",
	"<assistant>", "", "</assistant>", "",
	"<instructions>", "", "</instructions>", "",
)

// Sanitize removes structural markup tags and surrounding whitespace from
// message content.
func Sanitize(content string) string {
	return strings.TrimSpace(markupReplacer.Replace(content))
}

// truncate bounds s to max runes, appending an ellipsis when content was cut.
func truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// Format renders the three tiers in fixed order. Sections with no source
// records are omitted entirely; when every tier is empty the result is the
// empty string and the caller injects nothing.
func (f *Formatter) Format(result *TierResult) string {
	if result == nil {
		return ""
	}

	var sections []string

	if section := f.formatConversation(result.Conversation); section != "" {
		sections = append(sections, section)
	}
	if section := f.formatSnippets("Recent chat history:", result.Chat, f.cfg.ChatRecords, f.cfg.ChatSnippetLen); section != "" {
		sections = append(sections, section)
	}
	if section := f.formatSnippets("Related previous conversations:", result.CrossChat, f.cfg.CrossChatRecords, f.cfg.CrossChatSnippetLen); section != "" {
		sections = append(sections, section)
	}

	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

// formatConversation renders the trailing messages of the current
// conversation in original order, role-tagged.
func (f *Formatter) formatConversation(records []*ConversationRecord) string {
	if len(records) == 0 {
		return ""
	}
	messages := records[0].Messages
	if len(messages) == 0 {
		return ""
	}
	if len(messages) > f.cfg.ConversationMessages {
		messages = messages[len(messages)-f.cfg.ConversationMessages:]
	}

	var b strings.Builder
	b.WriteString("Current conversation:\n")
	wrote := false
	for _, msg := range messages {
		content := Sanitize(msg.Content)
		if content == "" {
			continue
		}
		b.WriteString(string(msg.Role))
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

// formatSnippets renders each record's first message as a bounded snippet.
func (f *Formatter) formatSnippets(header string, records []*ConversationRecord, maxRecords, snippetLen int) string {
	if len(records) == 0 {
		return ""
	}
	if len(records) > maxRecords {
		records = records[:maxRecords]
	}

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	wrote := false
	for _, record := range records {
		if len(record.Messages) == 0 {
			continue
		}
		content := Sanitize(record.Messages[0].Content)
		if content == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(truncate(content, snippetLen))
		b.WriteString("\n")
		wrote = true
	}
	if !wrote {
		return ""
	}
	return strings.TrimRight(b.String(), "\n")
}
