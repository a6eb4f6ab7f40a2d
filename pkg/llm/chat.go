package llm

import "fmt"

// Stop is one stop sequence or a list of them. It encodes as a JSON string
// when it holds exactly one sequence and as an array otherwise.
type Stop struct {
	Sequences []string
}

// StopText returns a single stop sequence.
func StopText(s string) Stop {
	return Stop{Sequences: []string{s}}
}

// StopTexts returns a list of stop sequences.
func StopTexts(s ...string) Stop {
	return Stop{Sequences: append([]string{}, s...)}
}

// Append returns the sequences of s followed by those of rhs.
func (s Stop) Append(rhs Stop) Stop {
	out := make([]string, 0, len(s.Sequences)+len(rhs.Sequences))
	out = append(out, s.Sequences...)
	return Stop{Sequences: append(out, rhs.Sequences...)}
}

func (s Stop) MarshalJSON() ([]byte, error) {
	if len(s.Sequences) == 1 {
		return marshal(s.Sequences[0])
	}
	return marshal(s.Sequences)
}

func (s *Stop) UnmarshalJSON(data []byte) error {
	var one string
	if err := unmarshal(data, &one); err == nil {
		s.Sequences = []string{one}
		return nil
	}
	var many []string
	if err := unmarshal(data, &many); err != nil {
		return fmt.Errorf("llm: stop must be a string or an array of strings: %w", err)
	}
	s.Sequences = many
	return nil
}

// ChatCompletionRequestBuilder assembles a ChatCompletionRequest.
type ChatCompletionRequestBuilder struct {
	req ChatCompletionRequest
}

func NewChatCompletionRequestBuilder() *ChatCompletionRequestBuilder {
	return &ChatCompletionRequestBuilder{}
}

func (b *ChatCompletionRequestBuilder) WithModel(model string) *ChatCompletionRequestBuilder {
	b.req.Model = model
	return b
}

// WithMessages appends messages in order.
func (b *ChatCompletionRequestBuilder) WithMessages(msgs ...Message) *ChatCompletionRequestBuilder {
	b.req.Messages = append(b.req.Messages, msgs...)
	return b
}

func (b *ChatCompletionRequestBuilder) AddMessage(msg Message) *ChatCompletionRequestBuilder {
	return b.WithMessages(msg)
}

// WithTool adds a function definition as a tool.
func (b *ChatCompletionRequestBuilder) WithTool(f Function) *ChatCompletionRequestBuilder {
	b.req.Tools = append(b.req.Tools, NewFunctionTool(f))
	return b
}

func (b *ChatCompletionRequestBuilder) WithTools(tools ...ToolCall) *ChatCompletionRequestBuilder {
	b.req.Tools = append(b.req.Tools, tools...)
	return b
}

func (b *ChatCompletionRequestBuilder) WithMaxTokens(n int) *ChatCompletionRequestBuilder {
	b.req.MaxTokens = &n
	return b
}

func (b *ChatCompletionRequestBuilder) WithTemperature(t float64) *ChatCompletionRequestBuilder {
	b.req.Temperature = &t
	return b
}

func (b *ChatCompletionRequestBuilder) WithTopP(p float64) *ChatCompletionRequestBuilder {
	b.req.TopP = &p
	return b
}

func (b *ChatCompletionRequestBuilder) WithN(n int) *ChatCompletionRequestBuilder {
	b.req.N = &n
	return b
}

func (b *ChatCompletionRequestBuilder) WithStream(stream bool) *ChatCompletionRequestBuilder {
	b.req.Stream = &stream
	return b
}

// WithStop replaces the stop sequences.
func (b *ChatCompletionRequestBuilder) WithStop(s Stop) *ChatCompletionRequestBuilder {
	b.req.Stop = &s
	return b
}

// AddStop appends to the stop sequences.
func (b *ChatCompletionRequestBuilder) AddStop(s Stop) *ChatCompletionRequestBuilder {
	if b.req.Stop == nil {
		return b.WithStop(s)
	}
	merged := b.req.Stop.Append(s)
	b.req.Stop = &merged
	return b
}

func (b *ChatCompletionRequestBuilder) WithFrequencyPenalty(p float64) *ChatCompletionRequestBuilder {
	b.req.FrequencyPenalty = &p
	return b
}

func (b *ChatCompletionRequestBuilder) WithResponseFormat(typ string) *ChatCompletionRequestBuilder {
	b.req.ResponseFormat = &ResponseFormat{Type: typ}
	return b
}

// Build fails when the model or the messages are missing.
func (b *ChatCompletionRequestBuilder) Build() (*ChatCompletionRequest, error) {
	if b.req.Model == "" {
		return nil, ErrMissingModel
	}
	if len(b.req.Messages) == 0 {
		return nil, ErrMissingMessages
	}
	req := b.req
	return &req, nil
}

// MessageBuilder assembles a Message.
type MessageBuilder struct {
	msg Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{}
}

func (b *MessageBuilder) WithRole(role Role) *MessageBuilder {
	b.msg.Role = role
	return b
}

// WithContent replaces the content with text.
func (b *MessageBuilder) WithContent(text string) *MessageBuilder {
	b.msg.Content = TextContent(text)
	return b
}

// AddContent appends a content part, converting text content to multi-part.
func (b *MessageBuilder) AddContent(part ContentPart) *MessageBuilder {
	if b.msg.Content == nil {
		b.msg.Content = PartsContent(part)
		return b
	}
	b.msg.Content.Append(part)
	return b
}

func (b *MessageBuilder) WithToolCallID(id string) *MessageBuilder {
	b.msg.ToolCallID = id
	return b
}

func (b *MessageBuilder) WithToolCalls(calls ...ToolCall) *MessageBuilder {
	b.msg.ToolCalls = calls
	return b
}

func (b *MessageBuilder) AddToolCall(call ToolCall) *MessageBuilder {
	b.msg.ToolCalls = append(b.msg.ToolCalls, call)
	return b
}

// Build fails when no role was set.
func (b *MessageBuilder) Build() (Message, error) {
	if b.msg.Role == "" {
		return Message{}, ErrMissingRole
	}
	return b.msg, nil
}
