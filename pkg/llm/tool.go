package llm

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolTypeFunction is the only tool type the API defines.
const ToolTypeFunction = "function"

// ToolCall is either a tool definition (in a request) or an invocation
// requested by the assistant (in a response). In a streaming delta every field
// is a fragment.
type ToolCall struct {
	ID       string   `json:"id,omitempty"`
	Type     string   `json:"type,omitempty"`
	Function Function `json:"function"`
}

// Function describes a callable function or carries the arguments of a call.
// Arguments is raw JSON text; during streaming it arrives in pieces.
type Function struct {
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Parameters  *Parameters `json:"parameters,omitempty"`
	Arguments   *string     `json:"arguments,omitempty"`
}

// Parameters is the JSON Schema object describing a function's arguments.
type Parameters struct {
	Type       string                       `json:"type"`
	Properties map[string]ParameterProperty `json:"properties"`
	Required   []string                     `json:"required,omitempty"`
}

// ParameterProperty describes one argument.
type ParameterProperty struct {
	Type        ParameterType     `json:"type,omitempty"`
	Description string            `json:"description"`
	Items       map[string]string `json:"items,omitempty"`
}

// ParameterType is a JSON Schema primitive type name.
type ParameterType string

const (
	ParameterString  ParameterType = "string"
	ParameterNumber  ParameterType = "number"
	ParameterInteger ParameterType = "integer"
	ParameterBoolean ParameterType = "boolean"
	ParameterArray   ParameterType = "array"
	ParameterObject  ParameterType = "object"
)

// NewFunctionTool wraps a function definition as a tool.
func NewFunctionTool(f Function) ToolCall {
	return ToolCall{Type: ToolTypeFunction, Function: f}
}

// ArgumentsText returns the raw argument text, or "" when absent.
func (f *Function) ArgumentsText() string {
	if f.Arguments == nil {
		return ""
	}
	return *f.Arguments
}

// DecodeArguments unmarshals the accumulated argument text into v.
func (f *Function) DecodeArguments(v any) error {
	if f.Arguments == nil {
		return fmt.Errorf("llm: function %q has no arguments", f.Name)
	}
	if err := unmarshal([]byte(*f.Arguments), v); err != nil {
		return fmt.Errorf("llm: decode arguments of %q: %w", f.Name, err)
	}
	return nil
}

// ValidateArguments checks the argument text against params.
func (f *Function) ValidateArguments(params *Parameters) error {
	schema, err := params.Compile()
	if err != nil {
		return err
	}
	var v any = map[string]any{}
	if f.Arguments != nil && *f.Arguments != "" {
		if err := unmarshal([]byte(*f.Arguments), &v); err != nil {
			return fmt.Errorf("llm: decode arguments of %q: %w", f.Name, err)
		}
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("llm: arguments of %q: %w", f.Name, err)
	}
	return nil
}

// Compile turns p into a JSON Schema validator.
func (p *Parameters) Compile() (*jsonschema.Schema, error) {
	b, err := marshal(p)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal parameters: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("parameters.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("llm: parameters schema: %w", err)
	}
	s, err := c.Compile("parameters.json")
	if err != nil {
		return nil, fmt.Errorf("llm: parameters schema: %w", err)
	}
	return s, nil
}

// Validate reports whether p is a well-formed JSON Schema.
func (p *Parameters) Validate() error {
	_, err := p.Compile()
	return err
}

// ToolCallBuilder builds a ToolCall.
type ToolCallBuilder struct {
	id       string
	typ      string
	function *Function
}

// NewToolCallBuilder returns a builder whose type defaults to "function".
func NewToolCallBuilder() *ToolCallBuilder {
	return &ToolCallBuilder{typ: ToolTypeFunction}
}

func (b *ToolCallBuilder) WithID(id string) *ToolCallBuilder {
	b.id = id
	return b
}

func (b *ToolCallBuilder) WithFunction(f Function) *ToolCallBuilder {
	b.function = &f
	return b
}

func (b *ToolCallBuilder) Build() (ToolCall, error) {
	if b.function == nil {
		return ToolCall{}, ErrMissingFunction
	}
	return ToolCall{ID: b.id, Type: b.typ, Function: *b.function}, nil
}

// FunctionBuilder builds a Function definition.
type FunctionBuilder struct {
	name        string
	description string
	parameters  *Parameters
}

func NewFunctionBuilder() *FunctionBuilder {
	return &FunctionBuilder{}
}

func (b *FunctionBuilder) WithName(name string) *FunctionBuilder {
	b.name = name
	return b
}

func (b *FunctionBuilder) WithDescription(description string) *FunctionBuilder {
	b.description = description
	return b
}

func (b *FunctionBuilder) WithParameters(p Parameters) *FunctionBuilder {
	b.parameters = &p
	return b
}

// Build fails when no name was given or the parameters are not a valid schema.
func (b *FunctionBuilder) Build() (Function, error) {
	if b.name == "" {
		return Function{}, ErrMissingName
	}
	if b.parameters != nil {
		if err := b.parameters.Validate(); err != nil {
			return Function{}, err
		}
	}
	return Function{Name: b.name, Description: b.description, Parameters: b.parameters}, nil
}

// ParametersBuilder builds a Parameters object of type "object".
type ParametersBuilder struct {
	properties map[string]ParameterProperty
	required   []string
}

func NewParametersBuilder() *ParametersBuilder {
	return &ParametersBuilder{properties: make(map[string]ParameterProperty)}
}

func (b *ParametersBuilder) AddProperty(name string, p ParameterProperty) *ParametersBuilder {
	b.properties[name] = p
	return b
}

func (b *ParametersBuilder) AddRequired(name string) *ParametersBuilder {
	b.required = append(b.required, name)
	return b
}

func (b *ParametersBuilder) Build() (Parameters, error) {
	for _, name := range b.required {
		if _, ok := b.properties[name]; !ok {
			return Parameters{}, fmt.Errorf("llm: required parameter %q has no property", name)
		}
	}
	return Parameters{
		Type:       string(ParameterObject),
		Properties: b.properties,
		Required:   b.required,
	}, nil
}

// ParameterPropertyBuilder builds a ParameterProperty.
type ParameterPropertyBuilder struct {
	typ         ParameterType
	description string
	items       map[string]string
}

func NewParameterPropertyBuilder() *ParameterPropertyBuilder {
	return &ParameterPropertyBuilder{}
}

func (b *ParameterPropertyBuilder) WithType(t ParameterType) *ParameterPropertyBuilder {
	b.typ = t
	return b
}

func (b *ParameterPropertyBuilder) WithDescription(description string) *ParameterPropertyBuilder {
	b.description = description
	return b
}

// WithItems sets one key of the "items" schema, e.g. ("type", "string").
func (b *ParameterPropertyBuilder) WithItems(key, value string) *ParameterPropertyBuilder {
	if b.items == nil {
		b.items = make(map[string]string)
	}
	b.items[key] = value
	return b
}

func (b *ParameterPropertyBuilder) Build() (ParameterProperty, error) {
	if b.typ == "" {
		return ParameterProperty{}, ErrMissingParameterType
	}
	if b.description == "" {
		return ParameterProperty{}, ErrMissingDescription
	}
	return ParameterProperty{Type: b.typ, Description: b.description, Items: b.items}, nil
}
