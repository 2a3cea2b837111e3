package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIProviderToolCall(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "c1", "object": "chat.completion", "model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "tool_calls", "message": {
				"role": "assistant", "content": "",
				"tool_calls": [{"id": "call_1", "type": "function",
					"function": {"name": "start_game", "arguments": "{\"buy_in\":\"0.5\"}"}}]
			}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-test", srv.URL+"/", "gpt-4o-mini")
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: "system", Content: "route"}, {Role: "user", Content: "start 0.5"}},
		Tools: []ToolDefinition{{Type: "function", Function: ToolFunctionSchema{
			Name: "start_game", Parameters: map[string]interface{}{"type": "object"},
		}}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got["model"] != "gpt-4o-mini" {
		t.Errorf("request model = %v", got["model"])
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "start_game" {
		t.Fatalf("tool calls = %+v", resp.ToolCalls)
	}
	if resp.ToolCalls[0].Arguments["buy_in"] != "0.5" {
		t.Errorf("arguments = %v", resp.ToolCalls[0].Arguments)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestOpenAIProviderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("openai", "sk-bad", srv.URL, "gpt-4o-mini")
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want 401 api error", err)
	}
}

func TestSystemPrompt(t *testing.T) {
	sys, rest := SystemPrompt([]Message{
		{Role: "system", Content: "a"},
		{Role: "user", Content: "u"},
		{Role: "system", Content: "b"},
	})
	if sys != "a\n\nb" || len(rest) != 1 {
		t.Fatalf("SystemPrompt = %q, %d rest", sys, len(rest))
	}
}

func TestToSchema(t *testing.T) {
	s := toSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"buy_in": map[string]interface{}{"type": "string", "description": "amount"},
		},
	})
	if s.Type != "OBJECT" || s.Properties["buy_in"].Type != "STRING" {
		t.Fatalf("schema = %+v", s)
	}
}

func TestTruncateTokensShortText(t *testing.T) {
	if got := TruncateTokens("hello", 64); got != "hello" {
		t.Fatalf("TruncateTokens = %q", got)
	}
	if got := TruncateTokens("hello", 0); got != "hello" {
		t.Fatalf("TruncateTokens with no budget = %q", got)
	}
}

func TestCountTokens(t *testing.T) {
	if got := CountTokens(""); got != 0 {
		t.Errorf("CountTokens(\"\") = %d, want 0", got)
	}
	long := strings.Repeat("start a game for half a dollar ", 40)
	if got := CountTokens(long); got < 40 {
		t.Errorf("CountTokens(long) = %d, want at least 40", got)
	}
	if got := CountTokens(TruncateTokens(long, 8)); got > 10 {
		t.Errorf("truncated text counts %d tokens, budget was 8", got)
	}
}
