package llm

// Role identifies the author of a message. The zero value means "unset".
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatCompletionRequest maps to the /chat/completions request body.
type ChatCompletionRequest struct {
	Model            string          `json:"model"`
	Messages         []Message       `json:"messages"`
	Tools            []ToolCall      `json:"tools,omitempty"`
	MaxTokens        *int            `json:"max_tokens,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	TopP             *float64        `json:"top_p,omitempty"`
	N                *int            `json:"n,omitempty"`
	Stream           *bool           `json:"stream,omitempty"`
	Stop             *Stop           `json:"stop,omitempty"`
	FrequencyPenalty *float64        `json:"frequency_penalty,omitempty"`
	ResponseFormat   *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat constrains the shape of the generated content.
type ResponseFormat struct {
	Type string `json:"type"` // "json_object"
}

// ResponseFormatJSONObject asks the server for a single JSON object.
const ResponseFormatJSONObject = "json_object"

// Message is one chat message. It is also the shape of a streaming delta:
// every field may be absent on a fragment.
type Message struct {
	Role       Role       `json:"role,omitempty"`
	Content    *Content   `json:"content,omitempty"`      // nil when absent
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool result messages only
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ChatCompletionResponse is a complete, non-streaming chat completion. It is
// also the value the streaming deltas are folded into (see MergeDelta).
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"` // "chat.completion"
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// DefaultResponseObject is the kind tag of a freshly constructed response.
const DefaultResponseObject = "chat.completion"

// NewChatCompletionResponse returns an empty response with default identity fields.
func NewChatCompletionResponse() *ChatCompletionResponse {
	return &ChatCompletionResponse{Object: DefaultResponseObject}
}

// Choice is one terminal generation slot.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason,omitempty"` // "stop" | "tool_calls" | "length"
}

// Usage reports token consumption for a request.
type Usage struct {
	CachedTokens     *int `json:"cached_tokens,omitempty"`
	CompletionTokens int  `json:"completion_tokens"`
	PromptTokens     int  `json:"prompt_tokens"`
	TotalTokens      int  `json:"total_tokens"`
}

// ChatCompletionChunk is one decoded streaming event. Identity fields are
// pointers because only some frames carry them.
type ChatCompletionChunk struct {
	ID      *string       `json:"id,omitempty"`
	Object  *string       `json:"object,omitempty"` // "chat.completion.chunk"
	Created *int64        `json:"created,omitempty"`
	Model   *string       `json:"model,omitempty"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"` // final chunk only on most servers
}

// ChunkChoice is the partial update for a single slot.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Message `json:"delta"`
	FinishReason *string `json:"finish_reason,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`
}

// ModelListResponse maps to the /models response body.
type ModelListResponse struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelInfo describes one model served by the API.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}
