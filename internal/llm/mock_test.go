package llm

import (
	"context"
	"errors"
	"testing"
)

func TestMockProvider_FixedResponse(t *testing.T) {
	provider := NewMockProvider()
	provider.SetResponse("hello")

	resp, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{NewUserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("expected 'hello', got %q", resp.Content)
	}
}

func TestMockProvider_QueueBeforeFixed(t *testing.T) {
	provider := NewMockProvider()
	provider.SetResponse("fallback")
	provider.EnqueueResponse("first")
	provider.EnqueueResponse("second")

	for _, want := range []string{"first", "second", "fallback"} {
		resp, err := provider.Chat(context.Background(), ChatRequest{})
		if err != nil {
			t.Fatalf("chat error: %v", err)
		}
		if resp.Content != want {
			t.Errorf("expected %q, got %q", want, resp.Content)
		}
	}
}

func TestMockProvider_Error(t *testing.T) {
	provider := NewMockProvider()
	provider.SetError(errors.New("boom"))

	if _, err := provider.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Error("expected error")
	}
}

func TestMockProvider_RecordsRequests(t *testing.T) {
	provider := NewMockProvider()
	provider.SetResponse("ok")

	provider.Chat(context.Background(), ChatRequest{Messages: []Message{NewUserMessage("one")}})
	provider.Chat(context.Background(), ChatRequest{Messages: []Message{NewUserMessage("two")}})

	if provider.CallCount() != 2 {
		t.Errorf("expected 2 calls, got %d", provider.CallCount())
	}
	last := provider.LastRequest()
	if last == nil || last.Messages[0].Content != "two" {
		t.Errorf("unexpected last request: %+v", last)
	}
}

func TestMockProvider_ChatFunc(t *testing.T) {
	provider := NewMockProvider()
	provider.ChatFunc = func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
		return &ChatResponse{Content: "from func: " + req.Messages[0].Content}, nil
	}

	resp, err := provider.Chat(context.Background(), ChatRequest{
		Messages: []Message{NewUserMessage("x")},
	})
	if err != nil {
		t.Fatalf("chat error: %v", err)
	}
	if resp.Content != "from func: x" {
		t.Errorf("got %q", resp.Content)
	}
	if provider.CallCount() != 1 {
		t.Errorf("ChatFunc calls should still be recorded, got %d", provider.CallCount())
	}
}
