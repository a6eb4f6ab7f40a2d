package llm

import (
	"bytes"
	"strings"

	"github.com/sirupsen/logrus"
)

// Frame markers of the streaming wire format: "data: <json>\n\n".
const (
	frameStart = "data: "
	frameEnd   = "\n\n"
	doneToken  = "[DONE]"
)

var (
	frameStartBytes = []byte(frameStart)
	frameEndBytes   = []byte(frameEnd)
)

// FrameExtractor turns an arbitrarily chunked byte stream into frames. A
// frame may span many chunks and a chunk may hold many frames; incomplete
// input stays buffered until the next Push.
//
// Leading blank lines are ignored. Blocks that end in "\n\n" but do not start
// with "data: " (SSE comments, event lines) are discarded.
type FrameExtractor struct {
	buf []byte
	log logrus.FieldLogger
}

// NewFrameExtractor returns an empty extractor. log may be nil.
func NewFrameExtractor(log logrus.FieldLogger) *FrameExtractor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FrameExtractor{log: log}
}

// Push appends chunk and returns the frames it completed, in order, with both
// markers stripped. Each byte is appended once and only the trailing
// len(frameEnd) bytes are compared, so the scan is linear in the input.
func (f *FrameExtractor) Push(chunk []byte) []string {
	var frames []string
	for _, b := range chunk {
		f.buf = append(f.buf, b)
		if !bytes.HasSuffix(f.buf, frameEndBytes) {
			continue
		}
		block := bytes.TrimLeft(f.buf[:len(f.buf)-len(frameEnd)], "\r\n")
		if !bytes.HasPrefix(block, frameStartBytes) {
			f.log.WithField("bytes", len(f.buf)).Debug("skip non-data block")
			f.buf = f.buf[:0]
			continue
		}
		frames = append(frames, strings.ToValidUTF8(string(block[len(frameStart):]), "�"))
		f.buf = f.buf[:0]
	}
	return frames
}

// Pending reports how many bytes are buffered waiting for an end marker.
func (f *FrameExtractor) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered bytes and releases the buffer.
func (f *FrameExtractor) Reset() {
	f.buf = nil
}

// IsDone reports whether frame is the end-of-stream sentinel: a non-object
// payload carrying "[DONE]". A chunk object whose text happens to contain
// "[DONE]" is not a sentinel.
func IsDone(frame string) bool {
	trimmed := strings.TrimSpace(frame)
	if strings.HasPrefix(trimmed, "{") {
		return false
	}
	return strings.Contains(trimmed, doneToken)
}
