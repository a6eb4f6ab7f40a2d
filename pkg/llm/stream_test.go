package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const helloStream = `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"step-1","choices":[{"index":0,"delta":{"role":"assistant","content":""},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"step-1","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"step-1","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}

data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"step-1","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}

data: [DONE]

`

func newTestStream(body string) *Stream {
	return NewStream(context.Background(), io.NopCloser(strings.NewReader(body)), quietLogger())
}

// frameReader returns one frame per Read and counts the reads.
type frameReader struct {
	frames []string
	reads  atomic.Int32
}

func (r *frameReader) Read(p []byte) (int, error) {
	n := int(r.reads.Add(1)) - 1
	if n >= len(r.frames) {
		return 0, io.EOF
	}
	return copy(p, r.frames[n]), nil
}

func TestStreamAccumulate(t *testing.T) {
	t.Run("text stream", func(t *testing.T) {
		resp, err := newTestStream(helloStream).Accumulate()
		if err != nil {
			t.Fatalf("Accumulate error: %v", err)
		}
		if resp.ID != "c1" || resp.Model != "step-1" {
			t.Errorf("identity = %q %q", resp.ID, resp.Model)
		}
		if len(resp.Choices) != 1 {
			t.Fatalf("got %d choices, want 1", len(resp.Choices))
		}
		c := resp.Choices[0]
		if c.Message.Role != RoleAssistant {
			t.Errorf("role = %q", c.Message.Role)
		}
		if got := c.Message.Content.Text; got != "Hello world" {
			t.Errorf("content = %q, want %q", got, "Hello world")
		}
		if c.FinishReason == nil || *c.FinishReason != "stop" {
			t.Errorf("FinishReason = %v", c.FinishReason)
		}
		if resp.Usage == nil || resp.Usage.TotalTokens != 7 {
			t.Errorf("Usage = %+v", resp.Usage)
		}
	})

	t.Run("callback sees every chunk", func(t *testing.T) {
		var n int
		_, err := newTestStream(helloStream).AccumulateWithCallback(func(*ChatCompletionChunk) { n++ })
		if err != nil {
			t.Fatal(err)
		}
		if n != 4 {
			t.Errorf("callback ran %d times, want 4", n)
		}
	})

	t.Run("malformed frame skipped", func(t *testing.T) {
		body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
			"data: {not json\n\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n"
		resp, err := newTestStream(body).Accumulate()
		if err != nil {
			t.Fatalf("Accumulate error: %v", err)
		}
		if got := resp.Choices[0].Message.Content.Text; got != "Hello" {
			t.Errorf("content = %q, want Hello", got)
		}
	})

	t.Run("unterminated tail dropped", func(t *testing.T) {
		body := "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"ok\"}}]}\n\n" +
			"data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lost\"}}]}"
		resp, err := newTestStream(body).Accumulate()
		if err != nil {
			t.Fatalf("Accumulate error: %v", err)
		}
		if got := resp.Choices[0].Message.Content.Text; got != "ok" {
			t.Errorf("content = %q, want ok", got)
		}
	})

	t.Run("transport error keeps partial response", func(t *testing.T) {
		boom := errors.New("connection reset")
		body := io.MultiReader(
			strings.NewReader("data: {\"id\":\"c9\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\ndata: {\"cho"),
			iotestErrReader{boom},
		)
		s := NewStream(context.Background(), io.NopCloser(body), quietLogger())
		resp, err := s.Accumulate()

		var te *TransportError
		if !errors.As(err, &te) {
			t.Fatalf("err = %v, want *TransportError", err)
		}
		if !errors.Is(err, boom) {
			t.Errorf("err does not wrap cause: %v", err)
		}
		if resp == nil || resp.ID != "c9" || resp.Choices[0].Message.Content.Text != "Hel" {
			t.Errorf("partial response = %+v", resp)
		}
	})

	t.Run("parent cancel ends accumulate", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		pr, pw := io.Pipe()
		s := NewStream(ctx, pr, quietLogger())

		go func() {
			fmt.Fprint(pw, "data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"a\"}}]}\n\n")
			cancel()
		}()

		done := make(chan struct{})
		var err error
		go func() {
			_, err = s.Accumulate()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Accumulate did not return after cancel")
		}
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

type iotestErrReader struct{ err error }

func (r iotestErrReader) Read([]byte) (int, error) { return 0, r.err }

func TestStreamNext(t *testing.T) {
	t.Run("chunks then EOF", func(t *testing.T) {
		s := newTestStream(helloStream)
		defer s.Close()

		var n int
		for {
			chunk, err := s.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("Next error: %v", err)
			}
			if chunk == nil {
				t.Fatal("nil chunk without error")
			}
			n++
		}
		if n != 4 {
			t.Errorf("got %d chunks, want 4", n)
		}
		if _, err := s.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("Next after end = %v, want io.EOF", err)
		}
	})

	t.Run("decode error is not terminal", func(t *testing.T) {
		s := newTestStream("data: {bad\n\ndata: {\"choices\":[]}\n\n")
		defer s.Close()

		if _, err := s.Next(); err == nil {
			t.Fatal("want decode error")
		} else {
			var de *DecodeError
			if !errors.As(err, &de) || de.Raw != "{bad" {
				t.Errorf("err = %v, want *DecodeError for {bad", err)
			}
		}
		if chunk, err := s.Next(); err != nil || chunk == nil {
			t.Errorf("Next = %v, %v; want chunk", chunk, err)
		}
		if _, err := s.Next(); !errors.Is(err, io.EOF) {
			t.Errorf("Next = %v, want io.EOF", err)
		}
	})

	t.Run("EOF survives later cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		s := NewStream(ctx, io.NopCloser(strings.NewReader("data: {\"choices\":[]}\n\n")), quietLogger())
		defer s.Close()

		if chunk, err := s.Next(); err != nil || chunk == nil {
			t.Fatalf("Next = %v, %v; want chunk", chunk, err)
		}
		if _, err := s.Next(); !errors.Is(err, io.EOF) {
			t.Fatalf("Next = %v, want io.EOF", err)
		}
		cancel()
		for i := 0; i < 2; i++ {
			if _, err := s.Next(); !errors.Is(err, io.EOF) {
				t.Errorf("Next after cancel = %v, want io.EOF", err)
			}
		}
	})
}

func TestStreamClose(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewStream(context.Background(), pr, quietLogger())

	go fmt.Fprint(pw, "data: {\"choices\":[]}\n\n")
	if _, err := s.Next(); err != nil {
		t.Fatalf("Next error: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, err := pw.Write([]byte("data: {}\n\n")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("write after Close = %v, want io.ErrClosedPipe", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestRunStream(t *testing.T) {
	t.Run("reads no further than one item ahead", func(t *testing.T) {
		var frames []string
		for i := 0; i < 5; i++ {
			frames = append(frames, fmt.Sprintf("data: {\"choices\":[{\"index\":0,\"delta\":{\"content\":\"%d\"}}]}\n\n", i))
		}
		body := &frameReader{frames: frames}
		out := make(chan StreamEvent, 1)
		go RunStream(context.Background(), body, out, quietLogger())

		time.Sleep(50 * time.Millisecond)
		if reads := body.reads.Load(); reads > 2 {
			t.Errorf("producer read %d frames with no consumer, want at most 2", reads)
		}

		resp := NewChatCompletionResponse()
		for ev := range out {
			if ev.Err != nil {
				t.Fatalf("event error: %v", ev.Err)
			}
			resp.MergeDelta(ev.Chunk)
		}
		if got := resp.Choices[0].Message.Content.Text; got != "01234" {
			t.Errorf("content = %q, want 01234", got)
		}
	})

	t.Run("consumer gone before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		out := make(chan StreamEvent, 1)
		RunStream(ctx, strings.NewReader(helloStream), out, quietLogger())

		if _, ok := <-out; ok {
			t.Error("event delivered after consumer left")
		}
	})

	t.Run("sentinel not delivered", func(t *testing.T) {
		out := make(chan StreamEvent, 8)
		RunStream(context.Background(), strings.NewReader("data: [DONE]\n\n"), out, nil)
		if ev, ok := <-out; ok {
			t.Errorf("unexpected event %+v", ev)
		}
	})
}
