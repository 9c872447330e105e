package llm

// ContentType distinguishes reasoning output from reply content.
type ContentType int

const (
	// ContentTypeMessage is reply content.
	ContentTypeMessage ContentType = iota
	// ContentTypeThinking is text inside <thinking> blocks.
	ContentTypeThinking
)

// StreamChunk is one element of a completion stream.
type StreamChunk struct {
	Role     string
	Content  string
	Type     ContentType
	Finished bool
	Error    error
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool {
	return c.Error != nil
}

// IsThinking reports whether the chunk is reasoning output.
func (c *StreamChunk) IsThinking() bool {
	return c.Type == ContentTypeThinking
}
