package generation

import (
	"context"
	"testing"
)

type echoRouter struct{}

func (echoRouter) Generate(_ context.Context, req Request) (*Response, error) {
	return &Response{Content: req.MemoryContext + req.Message, Model: "echo"}, nil
}

func TestRouterContract(t *testing.T) {
	var r Router = echoRouter{}

	resp, err := r.Generate(context.Background(), Request{
		UserID:         "user-1",
		ChatID:         "chat-1",
		ConversationID: "conv-1",
		MemoryContext:  "Relevant history:\n",
		Message:        "hello",
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content != "Relevant history:\nhello" {
		t.Errorf("unexpected content: %q", resp.Content)
	}
	if resp.Model != "echo" {
		t.Errorf("unexpected model: %q", resp.Model)
	}
}
