package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/jg-phare/stepfun/pkg/logutil"
	"github.com/sirupsen/logrus"
)

// Client talks to an OpenAI-compatible chat API. All methods are safe for
// concurrent use.
type Client interface {
	// ChatCompletion sends a non-streaming chat request.
	ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)

	// ChatCompletionStream sends a streaming chat request. The caller must
	// drain or Close the returned Stream.
	ChatCompletionStream(ctx context.Context, req *ChatCompletionRequest) (*Stream, error)

	// Chat dispatches on req.Stream.
	Chat(ctx context.Context, req *ChatCompletionRequest) (*ChatResult, error)

	Models(ctx context.Context) (*ModelListResponse, error)
	Generation(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

	UploadFile(ctx context.Context, req *FileUploadRequest) (*FileObject, error)
	ListFiles(ctx context.Context) (*FileListResponse, error)
	GetFile(ctx context.Context, id string) (*FileObject, error)
	FileContent(ctx context.Context, id string) (*FileContentResponse, error)
	DeleteFile(ctx context.Context, id string) error
}

// ChatResult holds exactly one of Response and Stream.
type ChatResult struct {
	Response *ChatCompletionResponse
	Stream   *Stream
}

// httpClient implements Client over net/http.
type httpClient struct {
	config ClientConfig
	base   *url.URL
	auth   Authenticator
	http   *http.Client
	log    logrus.FieldLogger
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg ClientConfig) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("llm: parse base url: %w", err)
	}
	if cfg.Version != "" {
		base = base.JoinPath(cfg.Version)
	}

	log := cfg.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	auth := cfg.Authenticator
	if auth == nil && cfg.APIKey != "" {
		auth = &Bearer{Key: cfg.APIKey, Log: log}
	}
	if auth == nil {
		return nil, ErrMissingAuthenticator
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = newHTTPClient(cfg.Proxy)
	}

	return &httpClient{
		config: cfg,
		base:   base,
		auth:   auth,
		http:   hc,
		log:    log,
	}, nil
}

// ChatCompletion sends a non-streaming chat request.
func (c *httpClient) ChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	r := *req
	r.Stream = boolPtr(false)

	var out ChatCompletionResponse
	if err := c.doJSON(ctx, http.MethodPost, "chat/completions", &r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatCompletionStream sends a streaming chat request and starts decoding
// the event stream. ClientConfig.Timeout is not applied to the stream.
func (c *httpClient) ChatCompletionStream(ctx context.Context, req *ChatCompletionRequest) (*Stream, error) {
	r := *req
	r.Stream = boolPtr(true)

	body, err := marshal(&r)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	logutil.Dump(c.log, logrus.TraceLevel, "REQ", &r)

	resp, err := c.do(ctx, http.MethodPost, "chat/completions", bytes.NewReader(body), func(h http.Header) {
		h.Set("Content-Type", "application/json")
		h.Set("Accept", "text/event-stream")
	})
	if err != nil {
		return nil, err
	}
	return NewStream(ctx, resp.Body, c.log), nil
}

// Chat sends req as streaming or non-streaming according to req.Stream.
func (c *httpClient) Chat(ctx context.Context, req *ChatCompletionRequest) (*ChatResult, error) {
	if req.Stream != nil && *req.Stream {
		s, err := c.ChatCompletionStream(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ChatResult{Stream: s}, nil
	}
	resp, err := c.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Response: resp}, nil
}

// Models lists the models available to the caller.
func (c *httpClient) Models(ctx context.Context) (*ModelListResponse, error) {
	var out ModelListResponse
	if err := c.doJSON(ctx, http.MethodGet, "models", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Generation requests image generation.
func (c *httpClient) Generation(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	var out GenerationResponse
	if err := c.doJSON(ctx, http.MethodPost, "images/generations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// doJSON sends in (when non-nil) as a JSON body and decodes the reply into
// out (when non-nil). The configured Timeout bounds the whole exchange.
func (c *httpClient) doJSON(ctx context.Context, method, path string, in, out any) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		b, err := marshal(in)
		if err != nil {
			return fmt.Errorf("llm: marshal request: %w", err)
		}
		logutil.Dump(c.log, logrus.TraceLevel, "REQ", in)
		body = bytes.NewReader(b)
	}

	resp, err := c.do(ctx, method, path, body, func(h http.Header) {
		if in != nil {
			h.Set("Content-Type", "application/json")
		}
	})
	if err != nil {
		return err
	}
	return c.decodeBody(resp, out)
}

// decodeBody reads and closes resp.Body, decoding it into out.
func (c *httpClient) decodeBody(resp *http.Response, out any) error {
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("llm: read response: %w", err)
	}
	logutil.DumpRaw(c.log, logrus.TraceLevel, "REP", data)

	if out == nil {
		return nil
	}
	if err := unmarshal(data, out); err != nil {
		return fmt.Errorf("llm: decode response: %w", err)
	}
	return nil
}

// do builds and sends one request. Non-2xx replies are returned as *APIError
// with the body already consumed.
func (c *httpClient) do(ctx context.Context, method, path string, body io.Reader, header func(http.Header)) (*http.Response, error) {
	u := c.base.JoinPath(path).String()
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}

	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	if header != nil {
		header(req.Header)
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	if err := c.auth.Authorize(ctx, req); err != nil {
		return nil, fmt.Errorf("llm: authorize request: %w", err)
	}

	log := c.log.WithFields(logrus.Fields{"method": method, "url": u, "request_id": reqID})
	log.Debug("send request")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := classifyError(resp)
		resp.Body.Close()
		log.WithField("status", resp.StatusCode).Error(apiErr.Message)
		return nil, apiErr
	}
	return resp, nil
}

func boolPtr(b bool) *bool { return &b }
