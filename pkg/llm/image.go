package llm

import "fmt"

// GenerationFormat selects how generated images are returned.
type GenerationFormat string

const (
	GenerationFormatB64JSON GenerationFormat = "b64_json"
	GenerationFormatURL     GenerationFormat = "url"
)

// GenerationRequest maps to the /images/generations request body.
type GenerationRequest struct {
	Model          string           `json:"model"`
	Prompt         string           `json:"prompt"`
	Size           string           `json:"size,omitempty"` // "WIDTHxHEIGHT"
	N              *int             `json:"n,omitempty"`
	ResponseFormat GenerationFormat `json:"response_format,omitempty"`
	Seed           *int             `json:"seed,omitempty"`
	Steps          *int             `json:"steps,omitempty"`
	CfgScale       *float64         `json:"cfg_scale,omitempty"`
}

// GenerationResponse maps to the /images/generations response body.
type GenerationResponse struct {
	Created int64            `json:"created"`
	Data    []GenerationData `json:"data"`
}

// GenerationData is one generated image. Exactly one of Image and URL is set,
// depending on the requested format.
type GenerationData struct {
	Seed         int    `json:"seed"`
	FinishReason string `json:"finish_reason"`
	Image        string `json:"image,omitempty"` // base64
	URL          string `json:"url,omitempty"`
}

// GenerationRequestBuilder assembles a GenerationRequest.
type GenerationRequestBuilder struct {
	req GenerationRequest
}

func NewGenerationRequestBuilder() *GenerationRequestBuilder {
	return &GenerationRequestBuilder{}
}

func (b *GenerationRequestBuilder) WithModel(model string) *GenerationRequestBuilder {
	b.req.Model = model
	return b
}

func (b *GenerationRequestBuilder) WithPrompt(prompt string) *GenerationRequestBuilder {
	b.req.Prompt = prompt
	return b
}

func (b *GenerationRequestBuilder) WithSize(width, height int) *GenerationRequestBuilder {
	b.req.Size = fmt.Sprintf("%dx%d", width, height)
	return b
}

func (b *GenerationRequestBuilder) WithN(n int) *GenerationRequestBuilder {
	b.req.N = &n
	return b
}

func (b *GenerationRequestBuilder) WithResponseFormat(f GenerationFormat) *GenerationRequestBuilder {
	b.req.ResponseFormat = f
	return b
}

func (b *GenerationRequestBuilder) WithSeed(seed int) *GenerationRequestBuilder {
	b.req.Seed = &seed
	return b
}

func (b *GenerationRequestBuilder) WithSteps(steps int) *GenerationRequestBuilder {
	b.req.Steps = &steps
	return b
}

func (b *GenerationRequestBuilder) WithCfgScale(scale float64) *GenerationRequestBuilder {
	b.req.CfgScale = &scale
	return b
}

// Build fails when the model or the prompt is missing.
func (b *GenerationRequestBuilder) Build() (*GenerationRequest, error) {
	if b.req.Model == "" {
		return nil, ErrMissingModel
	}
	if b.req.Prompt == "" {
		return nil, ErrMissingPrompt
	}
	req := b.req
	return &req, nil
}
