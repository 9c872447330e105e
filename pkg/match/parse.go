package match

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/entrhq/autofill/pkg/llm/parser"
	"github.com/entrhq/autofill/pkg/types"
)

type rawMatch struct {
	InputID    json.RawMessage `json:"inputId"`
	MatchedKey *string         `json:"matchedKey"`
}

type rawResponse struct {
	Matches []rawMatch `json:"matches"`
}

var errNoMatches = errors.New("response has no matches array")

// parseStrict decodes output that must be exactly the response object.
func parseStrict(output string) ([]rawMatch, error) {
	var resp struct {
		Matches *[]rawMatch `json:"matches"`
	}
	dec := json.NewDecoder(strings.NewReader(output))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode constrained output: %w", err)
	}
	if resp.Matches == nil {
		return nil, errNoMatches
	}
	return *resp.Matches, nil
}

// parseLenient pulls the first JSON value out of free-form output. Both the
// response object and a bare array of matches are accepted.
func parseLenient(output string) ([]rawMatch, error) {
	raw, err := parser.ExtractJSON(output)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(raw, "[") {
		var matches []rawMatch
		if err := json.Unmarshal([]byte(raw), &matches); err != nil {
			return nil, fmt.Errorf("failed to decode matches: %w", err)
		}
		return matches, nil
	}

	var resp rawResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Matches, nil
}

// inputID accepts an integer or a string holding one.
func inputID(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// applyNullPolicy turns raw matches into results for batch. Matches for
// unknown ids are dropped, repeated ids keep the first, and keys that are
// empty or not candidates become nil.
func applyNullPolicy(matches []rawMatch, batch []types.FieldRequest, candidates []types.PersonalInfoItem) []types.MatchResult {
	ids := make(map[int]bool, len(batch))
	for _, f := range batch {
		ids[f.ID] = true
	}
	keys := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		keys[c.Keyname] = true
	}

	seen := make(map[int]bool, len(matches))
	results := make([]types.MatchResult, 0, len(matches))
	for _, m := range matches {
		id, ok := inputID(m.InputID)
		if !ok || !ids[id] || seen[id] {
			continue
		}
		seen[id] = true

		result := types.MatchResult{FieldID: id}
		if m.MatchedKey != nil {
			key := strings.TrimSpace(*m.MatchedKey)
			if keys[key] {
				result.MatchedKey = types.KeyPtr(key)
			}
		}
		results = append(results, result)
	}
	return results
}
