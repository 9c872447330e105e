package parser

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a reply holds no JSON value.
var ErrNoJSON = errors.New("no JSON value found in model output")

var (
	thinkingBlock = regexp.MustCompile(`(?s)<thinking>.*?</thinking>`)
	codeFence     = regexp.MustCompile("(?m)^\\s*```[a-zA-Z0-9_-]*\\s*$")
)

// ExtractJSON returns the outermost JSON object or array in a model reply.
// Thinking blocks and code-fence markers are removed first.
func ExtractJSON(s string) (string, error) {
	s = thinkingBlock.ReplaceAllString(s, "")
	s = codeFence.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	s = strings.TrimSpace(s)

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", ErrNoJSON
	}

	if end := matchingClose(s, start); end > start {
		return s[start : end+1], nil
	}

	// Unbalanced output; fall back to the last closing delimiter.
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	if end := strings.LastIndexByte(s, closer); end > start {
		return s[start : end+1], nil
	}
	return "", ErrNoJSON
}

// matchingClose returns the index of the delimiter closing s[start], or -1.
func matchingClose(s string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
