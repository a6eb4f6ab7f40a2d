package llm

// MergeDelta folds one streaming chunk into r. It never fails: fields the
// chunk does not carry leave r untouched. r keeps no references into delta,
// so callers may retain the chunk after merging.
//
// Choices are joined by slot index and kept in first-seen order.
func (r *ChatCompletionResponse) MergeDelta(delta *ChatCompletionChunk) {
	if delta == nil {
		return
	}

	if delta.Usage != nil {
		r.Usage = cloneUsage(delta.Usage)
	}
	if delta.ID != nil {
		r.ID = *delta.ID
	}
	// Later frames may omit the kind tag or repeat a default; the first one wins.
	if delta.Object != nil && r.Object == "" {
		r.Object = *delta.Object
	}
	if delta.Created != nil {
		r.Created = *delta.Created
	}
	if delta.Model != nil {
		r.Model = *delta.Model
	}

	for _, cd := range delta.Choices {
		if cd.Usage != nil {
			r.Usage = cloneUsage(cd.Usage)
		}

		choice := r.choiceByIndex(cd.Index)
		if choice == nil {
			r.Choices = append(r.Choices, Choice{
				Index:        cd.Index,
				Message:      cloneMessage(cd.Delta),
				FinishReason: cloneString(cd.FinishReason),
			})
			continue
		}
		choice.merge(cd)
	}
}

func (r *ChatCompletionResponse) choiceByIndex(index int) *Choice {
	for i := range r.Choices {
		if r.Choices[i].Index == index {
			return &r.Choices[i]
		}
	}
	return nil
}

func (c *Choice) merge(cd ChunkChoice) {
	msg := &c.Message
	frag := cd.Delta

	if msg.Role == "" {
		msg.Role = frag.Role
	}

	if frag.Content != nil {
		if msg.Content == nil {
			msg.Content = cloneContent(frag.Content)
		} else {
			msg.Content.Merge(*cloneContent(frag.Content))
		}
	}

	if frag.ToolCallID != "" {
		msg.ToolCallID = frag.ToolCallID
	}

	msg.ToolCalls = mergeToolCalls(msg.ToolCalls, frag.ToolCalls)

	if cd.FinishReason != nil {
		c.FinishReason = cloneString(cd.FinishReason)
	}
}

// mergeToolCalls pairs fragments with existing calls by list position, not by
// id. This assumes a server streams the calls of one slot in a stable,
// non-interleaved order. Fragments past the end of dst start new calls.
func mergeToolCalls(dst, frags []ToolCall) []ToolCall {
	if len(dst) == 0 {
		return cloneToolCalls(frags)
	}
	for i, frag := range frags {
		if i >= len(dst) {
			dst = append(dst, cloneToolCall(frag))
			continue
		}
		lhs := &dst[i]
		if lhs.ID == "" {
			lhs.ID = frag.ID
		}
		if lhs.Type == "" {
			lhs.Type = frag.Type
		}
		if frag.Function.Name != "" {
			lhs.Function.Name = frag.Function.Name
		}
		switch {
		case frag.Function.Arguments == nil:
		case lhs.Function.Arguments == nil:
			lhs.Function.Arguments = cloneString(frag.Function.Arguments)
		default:
			joined := *lhs.Function.Arguments + *frag.Function.Arguments
			lhs.Function.Arguments = &joined
		}
	}
	return dst
}

func cloneMessage(m Message) Message {
	m.Content = cloneContent(m.Content)
	m.ToolCalls = cloneToolCalls(m.ToolCalls)
	return m
}

func cloneContent(c *Content) *Content {
	if c == nil {
		return nil
	}
	out := Content{Text: c.Text}
	if c.Parts != nil {
		out.Parts = make([]ContentPart, len(c.Parts))
		for i, p := range c.Parts {
			if p.ImageURL != nil {
				u := *p.ImageURL
				p.ImageURL = &u
			}
			out.Parts[i] = p
		}
	}
	return &out
}

func cloneToolCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, tc := range calls {
		out[i] = cloneToolCall(tc)
	}
	return out
}

func cloneToolCall(tc ToolCall) ToolCall {
	tc.Function.Arguments = cloneString(tc.Function.Arguments)
	return tc
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUsage(u *Usage) *Usage {
	v := *u
	v.CachedTokens = cloneInt(u.CachedTokens)
	return &v
}

func cloneInt(n *int) *int {
	if n == nil {
		return nil
	}
	v := *n
	return &v
}
