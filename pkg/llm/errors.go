package llm

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Builder and configuration errors.
var (
	ErrMissingModel         = errors.New("llm: request without model")
	ErrMissingMessages      = errors.New("llm: request without messages")
	ErrMissingRole          = errors.New("llm: message without role")
	ErrMissingPrompt        = errors.New("llm: generation request without prompt")
	ErrMissingFunction      = errors.New("llm: tool call without function")
	ErrMissingName          = errors.New("llm: function without name")
	ErrMissingParameterType = errors.New("llm: parameter property without type")
	ErrMissingDescription   = errors.New("llm: parameter property without description")
	ErrMissingFileSource    = errors.New("llm: file upload without source")
	ErrMissingBaseURL       = errors.New("llm: client without base url")
	ErrMissingAuthenticator = errors.New("llm: client without authenticator")
	ErrNoFileName           = errors.New("llm: no file name")
	ErrNoFileExtension      = errors.New("llm: no file extension")
)

// APIError wraps a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Kind       string // classification of StatusCode, e.g. "rate_limit"
	Message    string // response body, or the status text when empty
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llm: %s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
}

// DecodeError reports a stream frame whose payload is not a valid chunk. It
// is delivered in place of that chunk; the stream continues.
type DecodeError struct {
	Raw string // frame text with markers stripped
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("llm: decode stream frame: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a failure reading the response body. It ends the
// stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm: read stream: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classifyError maps an HTTP response to an APIError.
func classifyError(resp *http.Response) *APIError {
	bodyBytes, _ := io.ReadAll(resp.Body)
	msg := string(bodyBytes)
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Kind:       classifyStatus(resp.StatusCode),
		Message:    msg,
	}
}

// classifyStatus maps an HTTP status code to an error kind.
func classifyStatus(statusCode int) string {
	switch statusCode {
	case 400, 422:
		return "invalid_request"
	case 401:
		return "authentication_failed"
	case 402, 403:
		return "permission_denied"
	case 404:
		return "not_found"
	case 429:
		return "rate_limit"
	case 500, 502, 503, 504:
		return "server_error"
	default:
		return "unknown"
	}
}
