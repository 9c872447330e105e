package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("abc"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
	assert.Equal(t, 1, Estimate("邮箱地址"))
}

func TestNilTokenizerEstimates(t *testing.T) {
	var tok *Tokenizer
	assert.Equal(t, Estimate("hello world"), tok.CountTokens("hello world"))
}
