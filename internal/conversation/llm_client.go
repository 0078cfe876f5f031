package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is an internal message representation that can include system prompts.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// SchemaProperty describes one field of a structured JSON response.
type SchemaProperty struct {
	Type        string // string, number, boolean
	Description string
	Enum        []string
	Nullable    bool
}

// ResponseSchema asks the backend for a single JSON object with these fields.
// Providers without native schema support receive it as an instruction.
type ResponseSchema struct {
	Properties map[string]SchemaProperty
	Required   []string
}

type LLMRequest struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
	Schema      *ResponseSchema
}

type LLMResponse struct {
	Text       string
	Usage      TokenUsage
	StopReason string
}

type LLMClient interface {
	Complete(ctx context.Context, req LLMRequest) (LLMResponse, error)
}
