package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

func newTestClient(t *testing.T, srv *httptest.Server, mutate ...func(*ClientConfig)) Client {
	t.Helper()
	cfg := ClientConfig{
		BaseURL: srv.URL,
		Version: "v1",
		APIKey:  "test-key",
		Logger:  quietLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func helloRequest(t *testing.T) *ChatCompletionRequest {
	t.Helper()
	msg, err := NewMessageBuilder().WithRole(RoleUser).WithContent("Hi").Build()
	if err != nil {
		t.Fatal(err)
	}
	req, err := NewChatCompletionRequestBuilder().WithModel("step-1-8k").AddMessage(msg).Build()
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func decodeRequest(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Errorf("read request body: %v", err)
		return nil
	}
	var body map[string]any
	if err := unmarshal(data, &body); err != nil {
		t.Errorf("decode request body: %v", err)
	}
	return body
}

func TestNewClient(t *testing.T) {
	t.Run("missing base url", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{APIKey: "k"}); !errors.Is(err, ErrMissingBaseURL) {
			t.Errorf("err = %v, want ErrMissingBaseURL", err)
		}
	})

	t.Run("missing authenticator", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{BaseURL: "http://localhost"}); !errors.Is(err, ErrMissingAuthenticator) {
			t.Errorf("err = %v, want ErrMissingAuthenticator", err)
		}
	})

	t.Run("bad base url", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{BaseURL: "http://[::1", APIKey: "k"}); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestClient(t *testing.T) {
	t.Run("end-to-end streaming", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/chat/completions" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected Authorization header: %s", got)
			}
			if got := r.Header.Get("Accept"); got != "text/event-stream" {
				t.Errorf("Accept = %q", got)
			}
			if _, err := uuid.Parse(r.Header.Get("X-Request-Id")); err != nil {
				t.Errorf("X-Request-Id = %q: %v", r.Header.Get("X-Request-Id"), err)
			}
			if body := decodeRequest(t, r); body["stream"] != true {
				t.Errorf("stream = %v, want true", body["stream"])
			}
			w.Header().Set("Content-Type", "text/event-stream")
			w.WriteHeader(200)
			fmt.Fprint(w, helloStream)
		}))
		defer srv.Close()

		stream, err := newTestClient(t, srv).ChatCompletionStream(context.Background(), helloRequest(t))
		if err != nil {
			t.Fatalf("ChatCompletionStream error: %v", err)
		}
		resp, err := stream.Accumulate()
		if err != nil {
			t.Fatalf("Accumulate error: %v", err)
		}
		if got := resp.Choices[0].Message.Content.Text; got != "Hello world" {
			t.Errorf("content = %q", got)
		}
	})

	t.Run("non-streaming", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body := decodeRequest(t, r)
			if body["stream"] != false {
				t.Errorf("stream = %v, want false", body["stream"])
			}
			if body["model"] != "step-1-8k" {
				t.Errorf("model = %v", body["model"])
			}
			fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":3,"model":"step-1-8k","choices":[{"index":0,"message":{"role":"assistant","content":"Hey"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
		}))
		defer srv.Close()

		resp, err := newTestClient(t, srv).ChatCompletion(context.Background(), helloRequest(t))
		if err != nil {
			t.Fatalf("ChatCompletion error: %v", err)
		}
		want := &ChatCompletionResponse{
			ID:      "c1",
			Object:  "chat.completion",
			Created: 3,
			Model:   "step-1-8k",
			Choices: []Choice{{
				Message:      Message{Role: RoleAssistant, Content: TextContent("Hey")},
				FinishReason: strPtr("stop"),
			}},
			Usage: &Usage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2},
		}
		if diff := cmp.Diff(want, resp); diff != "" {
			t.Errorf("response mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("chat dispatches on stream flag", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if decodeRequest(t, r)["stream"] == true {
				fmt.Fprint(w, helloStream)
				return
			}
			fmt.Fprint(w, `{"id":"c1","choices":[]}`)
		}))
		defer srv.Close()
		c := newTestClient(t, srv)

		req := helloRequest(t)
		res, err := c.Chat(context.Background(), req)
		if err != nil || res.Response == nil || res.Stream != nil {
			t.Fatalf("Chat = %+v, %v; want response", res, err)
		}

		req.Stream = boolPtr(true)
		res, err = c.Chat(context.Background(), req)
		if err != nil || res.Stream == nil || res.Response != nil {
			t.Fatalf("Chat = %+v, %v; want stream", res, err)
		}
		res.Stream.Close()
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(429)
			fmt.Fprint(w, `{"error":{"message":"too many requests"}}`)
		}))
		defer srv.Close()

		_, err := newTestClient(t, srv).ChatCompletionStream(context.Background(), helloRequest(t))
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("err = %v, want *APIError", err)
		}
		if apiErr.StatusCode != 429 || apiErr.Kind != "rate_limit" {
			t.Errorf("APIError = %+v", apiErr)
		}
		if !strings.Contains(apiErr.Message, "too many requests") {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})

	t.Run("custom headers and authenticator", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("X-Tenant"); got != "acme" {
				t.Errorf("X-Tenant = %q", got)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer other" {
				t.Errorf("Authorization = %q", got)
			}
			fmt.Fprint(w, `{"object":"list","data":[]}`)
		}))
		defer srv.Close()

		c := newTestClient(t, srv, func(cfg *ClientConfig) {
			cfg.APIKey = ""
			cfg.Authenticator = &Bearer{Key: "other", Log: quietLogger()}
			cfg.Headers = map[string]string{"X-Tenant": "acme", "Authorization": "Bearer stale"}
		})
		if _, err := c.Models(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()

		c := newTestClient(t, srv, func(cfg *ClientConfig) { cfg.Timeout = 20 * time.Millisecond })
		_, err := c.Models(context.Background())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})

	t.Run("models", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/v1/models" {
				t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			}
			fmt.Fprint(w, `{"object":"list","data":[{"id":"step-1-8k","object":"model","created":1,"owned_by":"stepai"}]}`)
		}))
		defer srv.Close()

		resp, err := newTestClient(t, srv).Models(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Data) != 1 || resp.Data[0].ID != "step-1-8k" || resp.Data[0].OwnedBy != "stepai" {
			t.Errorf("Models = %+v", resp)
		}
	})

	t.Run("generation", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/images/generations" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			body := decodeRequest(t, r)
			if body["size"] != "512x512" || body["prompt"] != "a cat" {
				t.Errorf("body = %v", body)
			}
			fmt.Fprint(w, `{"created":9,"data":[{"seed":42,"finish_reason":"success","url":"https://img/1.png"}]}`)
		}))
		defer srv.Close()

		req, err := NewGenerationRequestBuilder().WithModel("step-1x-medium").WithPrompt("a cat").WithSize(512, 512).Build()
		if err != nil {
			t.Fatal(err)
		}
		resp, err := newTestClient(t, srv).Generation(context.Background(), req)
		if err != nil {
			t.Fatal(err)
		}
		if len(resp.Data) != 1 || resp.Data[0].Seed != 42 || resp.Data[0].URL != "https://img/1.png" {
			t.Errorf("Generation = %+v", resp)
		}
	})
}

func TestClientFiles(t *testing.T) {
	const fileJSON = `{"id":"file-1","object":"file","bytes":5,"created_at":10,"filename":"notes.txt","purpose":"file-extract","status":"success"}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/files":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				t.Errorf("ParseMultipartForm: %v", err)
				return
			}
			if got := r.FormValue("purpose"); got != "file-extract" {
				t.Errorf("purpose = %q", got)
			}
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("FormFile: %v", err)
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			fmt.Fprintf(w, `{"id":"file-1","object":"file","bytes":%d,"created_at":10,"filename":%q,"purpose":"file-extract"}`, len(data), hdr.Filename)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files":
			fmt.Fprintf(w, `{"object":"list","data":[%s]}`, fileJSON)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file-1":
			fmt.Fprint(w, fileJSON)
		case r.Method == http.MethodGet && r.URL.Path == "/v1/files/file-1/content":
			fmt.Fprint(w, `{"filename":"notes.txt","content":"hello"}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/files/file-1":
			fmt.Fprint(w, `{"id":"file-1","object":"file","deleted":true}`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
			w.WriteHeader(404)
		}
	}))
	defer srv.Close()
	c := newTestClient(t, srv)
	ctx := context.Background()

	t.Run("upload local", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
			t.Fatal(err)
		}
		req, err := NewFileUploadRequestBuilder().WithSource(LocalFile(path)).Build()
		if err != nil {
			t.Fatal(err)
		}
		obj, err := c.UploadFile(ctx, req)
		if err != nil {
			t.Fatalf("UploadFile: %v", err)
		}
		if obj.Filename != "notes.txt" || obj.Bytes != 5 {
			t.Errorf("FileObject = %+v", obj)
		}
	})

	t.Run("upload remote over self-signed tls", func(t *testing.T) {
		remote := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "remote bytes")
		}))
		defer remote.Close()

		req, err := NewFileUploadRequestBuilder().WithSource(RemoteFile(remote.URL+"/docs/report.txt", true)).Build()
		if err != nil {
			t.Fatal(err)
		}
		obj, err := c.UploadFile(ctx, req)
		if err != nil {
			t.Fatalf("UploadFile: %v", err)
		}
		if obj.Filename != "report.txt" || obj.Bytes != int64(len("remote bytes")) {
			t.Errorf("FileObject = %+v", obj)
		}
	})

	t.Run("upload missing file", func(t *testing.T) {
		req, _ := NewFileUploadRequestBuilder().WithSource(LocalFile(filepath.Join(t.TempDir(), "nope.txt"))).Build()
		if _, err := c.UploadFile(ctx, req); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("err = %v, want not exist", err)
		}
	})

	t.Run("list get content delete", func(t *testing.T) {
		list, err := c.ListFiles(ctx)
		if err != nil || len(list.Data) != 1 || list.Data[0].ID != "file-1" {
			t.Fatalf("ListFiles = %+v, %v", list, err)
		}
		obj, err := c.GetFile(ctx, "file-1")
		if err != nil || obj.Status != "success" {
			t.Fatalf("GetFile = %+v, %v", obj, err)
		}
		content, err := c.FileContent(ctx, "file-1")
		if err != nil || content.Content != "hello" {
			t.Fatalf("FileContent = %+v, %v", content, err)
		}
		if err := c.DeleteFile(ctx, "file-1"); err != nil {
			t.Fatalf("DeleteFile: %v", err)
		}
	})
}

func TestFileUploadRequestBuilder(t *testing.T) {
	if _, err := NewFileUploadRequestBuilder().Build(); !errors.Is(err, ErrMissingFileSource) {
		t.Errorf("err = %v, want ErrMissingFileSource", err)
	}
	req, err := NewFileUploadRequestBuilder().WithSource(LocalFile("a.pdf")).WithPurpose(FilePurposeRetrieval).Build()
	if err != nil {
		t.Fatal(err)
	}
	if req.Purpose != FilePurposeRetrieval {
		t.Errorf("Purpose = %q", req.Purpose)
	}
	if _, err := RemoteFile("https://host/", false).Name(); !errors.Is(err, ErrNoFileName) {
		t.Errorf("Name err = %v, want ErrNoFileName", err)
	}
}

func TestLoadClientConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	env := "OPENAI_API_BASE_URL=https://api.example.com\nOPENAI_API_KEY=from-file\nOPENAI_API_VERSION=v1\nOPENAI_API_MODEL_NAME=step-1-8k\n"
	if err := os.WriteFile(path, []byte(env), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIKey, "from-env")

	cfg, model, err := LoadClientConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BaseURL != "https://api.example.com" || cfg.Version != "v1" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want the environment to win", cfg.APIKey)
	}
	if model != "step-1-8k" {
		t.Errorf("model = %q", model)
	}

	if _, _, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("missing env file: %v", err)
	}
}
