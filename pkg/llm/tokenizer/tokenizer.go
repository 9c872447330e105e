// Package tokenizer counts prompt tokens client side.
package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the BPE used for counting.
const Encoding = "cl100k_base"

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

// New loads the encoding. Loading may need network access the first time
// tiktoken fetches its ranks.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", Encoding, err)
	}
	return &Tokenizer{enc: enc}, nil
}

// CountTokens returns the number of tokens in text. A nil Tokenizer
// estimates one token per four runes.
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.enc == nil {
		return Estimate(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Estimate approximates the token count of text without an encoding.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}
