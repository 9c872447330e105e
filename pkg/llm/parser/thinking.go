// Package parser extracts usable content from model output.
package parser

import "strings"

const (
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)

// ThinkingFilter separates <thinking> blocks from reply text across streamed
// deltas. Tags split between deltas are held back until they resolve.
type ThinkingFilter struct {
	pending    string
	inThinking bool
}

// NewThinkingFilter returns a filter positioned outside any thinking block.
func NewThinkingFilter() *ThinkingFilter {
	return &ThinkingFilter{}
}

// Feed consumes one delta and returns the reply and thinking text it settles.
func (f *ThinkingFilter) Feed(delta string) (message, thinking string) {
	data := f.pending + delta
	f.pending = ""

	var msg, think strings.Builder
	for data != "" {
		tag := thinkingOpen
		if f.inThinking {
			tag = thinkingClose
		}

		if i := strings.Index(data, tag); i >= 0 {
			f.write(&msg, &think, data[:i])
			data = data[i+len(tag):]
			f.inThinking = !f.inThinking
			continue
		}

		keep := partialSuffix(data, tag)
		f.write(&msg, &think, data[:len(data)-keep])
		f.pending = data[len(data)-keep:]
		break
	}
	return msg.String(), think.String()
}

// Flush returns text still held back at the end of a stream.
func (f *ThinkingFilter) Flush() (message, thinking string) {
	rest := f.pending
	f.pending = ""
	if f.inThinking {
		return "", rest
	}
	return rest, ""
}

// InThinking reports whether the filter is inside a thinking block.
func (f *ThinkingFilter) InThinking() bool {
	return f.inThinking
}

func (f *ThinkingFilter) write(msg, think *strings.Builder, s string) {
	if f.inThinking {
		think.WriteString(s)
		return
	}
	msg.WriteString(s)
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of tag.
func partialSuffix(s, tag string) int {
	max := len(tag) - 1
	if len(s) < max {
		max = len(s)
	}
	for n := max; n > 0; n-- {
		if strings.HasPrefix(tag, s[len(s)-n:]) {
			return n
		}
	}
	return 0
}
