package types

// FieldRequest is one field sent to the matcher: its run index and context.
type FieldRequest struct {
	ID      int    `json:"id"`
	Context string `json:"context"`
}

// MatchResult maps a field to a vault key. A nil MatchedKey means "do not
// fill".
type MatchResult struct {
	FieldID    int     `json:"inputId"`
	MatchedKey *string `json:"matchedKey"`
}

// Matched reports whether the result names a key.
func (r MatchResult) Matched() bool {
	return r.MatchedKey != nil && *r.MatchedKey != ""
}

// Key returns the matched key or "".
func (r MatchResult) Key() string {
	if r.MatchedKey == nil {
		return ""
	}
	return *r.MatchedKey
}

// KeyPtr returns a pointer to a copy of key.
func KeyPtr(key string) *string {
	return &key
}
