package llm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
)

// readBufferSize is the size of each body read handed to the FrameExtractor.
const readBufferSize = 4096

// StreamEvent is one delivered item: a decoded chunk or an error. Decode
// errors (*DecodeError) are followed by more events; a transport error
// (*TransportError) is the last event.
type StreamEvent struct {
	Chunk *ChatCompletionChunk
	Err   error
}

// RunStream reads body until it is exhausted, fails, or ctx is cancelled,
// delivering every decoded chunk or decode error to out in arrival order. It
// closes out before returning.
//
// A cancelled ctx means the consumer is gone: RunStream stops reading at the
// next delivery attempt and reports nothing. Bytes of an unterminated frame
// left at end of input or after a read failure are dropped.
func RunStream(ctx context.Context, body io.Reader, out chan<- StreamEvent, log logrus.FieldLogger) {
	defer close(out)
	if log == nil {
		log = logrus.StandardLogger()
	}

	frames := NewFrameExtractor(log)
	defer frames.Reset()
	buf := make([]byte, readBufferSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			log.WithField("bytes", n).Debug("recv chunk")
			for _, frame := range frames.Push(buf[:n]) {
				chunk, done, derr := DecodeFrame(frame)
				var ev StreamEvent
				switch {
				case done:
					log.WithField("data", frame).Trace("met [DONE]")
					continue
				case derr != nil:
					log.WithError(derr).WithField("data", frame).Error("failed to parse stream frame")
					ev = StreamEvent{Err: derr}
				default:
					ev = StreamEvent{Chunk: chunk}
				}
				if !deliver(ctx, out, ev) {
					log.Debug("stream consumer gone, stop reading")
					return
				}
			}
		}

		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if pending := frames.Pending(); pending > 0 {
				log.WithField("pending", pending).Warn("stream closed with unterminated frame, dropping it")
			}
			log.Debug("stream producer quit")
			return
		}
		if ctx.Err() != nil {
			log.Debug("stream consumer gone, stop reading")
			return
		}
		log.WithError(err).WithField("pending", frames.Pending()).Error("stream return with error")
		deliver(ctx, out, StreamEvent{Err: &TransportError{Err: err}})
		return
	}
}

// deliver hands ev to the consumer, reporting false when the consumer is gone.
func deliver(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stream is an active streaming chat completion. A producer goroutine decodes
// the response body while the caller consumes; at most one decoded item waits
// in between, so a slow consumer slows down reading.
type Stream struct {
	events <-chan StreamEvent
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    logrus.FieldLogger

	closeBody func() error
	closeOnce sync.Once
	closeErr  error

	endErr error // io.EOF or the context error, fixed when first seen
}

// NewStream starts decoding body. The stream stops when ctx is cancelled or
// Close is called; either way body is closed.
func NewStream(ctx context.Context, body io.ReadCloser, log logrus.FieldLogger) *Stream {
	if log == nil {
		log = logrus.StandardLogger()
	}
	streamCtx, cancel := context.WithCancel(ctx)
	events := make(chan StreamEvent, 1)

	var bodyOnce sync.Once
	var bodyErr error
	closeBody := func() error {
		bodyOnce.Do(func() { bodyErr = body.Close() })
		return bodyErr
	}

	s := &Stream{
		events:    events,
		parent:    ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		log:       log,
		closeBody: closeBody,
	}

	// Unblocks a pending Read on bodies that do not watch ctx themselves.
	stop := context.AfterFunc(streamCtx, func() { closeBody() })

	go func() {
		defer close(s.done)
		defer closeBody()
		defer stop()
		RunStream(streamCtx, body, events, log)
	}()

	return s
}

// Events exposes the raw event channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan StreamEvent {
	return s.events
}

// Next returns the next chunk. It returns a *DecodeError for an undecodable
// frame (the stream goes on) and a *TransportError when reading failed. Once
// the stream is exhausted it returns io.EOF, or the context error when the
// stream's context was cancelled, and keeps returning that same error.
func (s *Stream) Next() (*ChatCompletionChunk, error) {
	if s.endErr != nil {
		return nil, s.endErr
	}
	ev, ok := <-s.events
	if !ok {
		return nil, s.end()
	}
	if ev.Err != nil {
		return nil, ev.Err
	}
	return ev.Chunk, nil
}

// Accumulate reads all remaining chunks and returns them merged into one response.
func (s *Stream) Accumulate() (*ChatCompletionResponse, error) {
	return s.AccumulateWithCallback(nil)
}

// AccumulateWithCallback reads all chunks, calling cb for each chunk before
// merging it. Undecodable frames are logged and skipped. When reading fails
// the response merged so far is returned together with the error.
func (s *Stream) AccumulateWithCallback(cb func(*ChatCompletionChunk)) (*ChatCompletionResponse, error) {
	defer s.Close()

	resp := NewChatCompletionResponse()
	for ev := range s.events {
		if ev.Err != nil {
			var decodeErr *DecodeError
			if errors.As(ev.Err, &decodeErr) {
				s.log.WithError(decodeErr).Warn("failed to process stream delta")
				continue
			}
			return resp, ev.Err
		}
		if cb != nil {
			cb(ev.Chunk)
		}
		resp.MergeDelta(ev.Chunk)
	}
	if err := s.end(); err != io.EOF {
		return resp, err
	}
	return resp, nil
}

// end records how the drained stream finished. Cancelling the context
// afterwards does not change the result.
func (s *Stream) end() error {
	if s.endErr == nil {
		s.endErr = io.EOF
		if err := s.parent.Err(); err != nil {
			s.endErr = err
		}
	}
	return s.endErr
}

// Close stops the producer, closes the body and waits for the producer to exit.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.closeErr = s.closeBody()
		<-s.done
	})
	return s.closeErr
}
