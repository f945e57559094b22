package providers

// Message represents a single message in a conversation.
type Message struct {
	// Role identifies the message sender (system, user, assistant, tool)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`

	// Name is an optional name for the message sender
	Name string `json:"name,omitempty"`

	// ToolCalls contains tool calls proposed by the assistant (for assistant role)
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is used when role is "tool" to reference which tool call this responds to
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall represents a tool call proposed by the model.
// The arguments are an opaque JSON string and must be parsed defensively.
type ToolCall struct {
	// ID is a unique identifier for this tool call
	ID string `json:"id"`

	// Type is the type of tool call (currently always "function")
	Type string `json:"type,omitempty"`

	// Function contains the function name and arguments
	Function FunctionCall `json:"function"`
}

// FunctionCall represents a specific function invocation.
type FunctionCall struct {
	// Name is the function name to call
	Name string `json:"name"`

	// Arguments is a JSON string containing the function arguments
	Arguments string `json:"arguments"`
}

// Tool represents a tool definition advertised to the model.
type Tool struct {
	// Type is the type of tool (currently always "function")
	Type string `json:"type"`

	// Function contains the function definition
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition defines a callable function.
type FunctionDefinition struct {
	// Name is the function name
	Name string `json:"name"`

	// Description explains what the function does
	Description string `json:"description,omitempty"`

	// Parameters is a JSON Schema object describing the function parameters
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest represents a provider-agnostic completion request.
type CompletionRequest struct {
	// Model is the model identifier
	Model string `json:"model"`

	// Messages is the conversation history
	Messages []Message `json:"messages"`

	// Temperature controls randomness
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int `json:"max_tokens,omitempty"`

	// Stream indicates whether to stream the response
	Stream bool `json:"stream,omitempty"`

	// Tools is a list of tools the model can call
	Tools []Tool `json:"tools,omitempty"`

	// Metadata carries request context that is not sent to the model
	Metadata map[string]string `json:"-"`
}

// CompletionResponse represents a provider-agnostic completion response.
type CompletionResponse struct {
	// ID is the unique response identifier
	ID string `json:"id,omitempty"`

	// Model is the model that generated the response
	Model string `json:"model,omitempty"`

	// Content is the generated text content
	Content string `json:"content"`

	// FinishReason indicates why generation stopped
	FinishReason string `json:"finish_reason,omitempty"`

	// Usage contains token consumption information
	Usage *TokenUsage `json:"usage,omitempty"`

	// ToolCalls contains any tool calls proposed by the model
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	// Delta is the incremental content in this chunk
	Delta string `json:"delta"`

	// FinishReason is set in the final chunk to indicate why generation stopped
	FinishReason string `json:"finish_reason,omitempty"`

	// ToolCalls contains tool calls completed by this chunk
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// Usage is included in the final chunk (if supported by provider)
	Usage *TokenUsage `json:"usage,omitempty"`

	// Error is set if an error occurred during streaming
	Error error `json:"-"`
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reason constants
const (
	FinishReasonStop      = "stop"
	FinishReasonLength    = "length"
	FinishReasonToolCalls = "tool_calls"
	FinishReasonTimeout   = "timeout"
)

// Tool type constants
const (
	ToolTypeFunction = "function"
)
