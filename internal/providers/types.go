// Package providers wraps language-model APIs behind a single tool-calling contract.
package providers

import "context"

// Provider is one oracle backend. Chat is a single non-streaming completion; the
// oracle only reads the tool call (or text) it returns.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	DefaultModel() string
	Name() string // "openai", "gemini"
}

type ChatRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []ToolDefinition `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
}

// ChatResponse carries at most one useful tool call for the oracle.
type ChatResponse struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "tool_calls", "length"
	Usage        *Usage     `json:"usage,omitempty"`
}

type Message struct {
	Role    string `json:"role"` // "system" or "user"
	Content string `json:"content"`
}

// ToolCall is the model's selected command with decoded arguments.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema.Parameters is a JSON Schema object.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SystemPrompt returns the concatenated system messages and the remaining messages.
func SystemPrompt(msgs []Message) (string, []Message) {
	var sys string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "system" {
			if sys != "" {
				sys += "\n\n"
			}
			sys += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return sys, rest
}
