package llm

// DecodeFrame parses one frame into a chunk. done is true for the
// end-of-stream sentinel, which carries no chunk. A malformed payload yields
// a *DecodeError holding the raw frame.
func DecodeFrame(frame string) (chunk *ChatCompletionChunk, done bool, err error) {
	if IsDone(frame) {
		return nil, true, nil
	}
	var c ChatCompletionChunk
	if err := unmarshal([]byte(frame), &c); err != nil {
		return nil, false, &DecodeError{Raw: frame, Err: err}
	}
	return &c, false, nil
}
