package match

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/autofill/pkg/llm"
	"github.com/entrhq/autofill/pkg/types"
)

// SystemInstructions are sent with every matching prompt.
const SystemInstructions = `You are a precise form-filling assistant.
Map each form input to exactly ONE personal data key from the provided list, or to null.

Rules:
1. Compare each input's context (labels, placeholders, names, surrounding text) with the description of every available key.
2. Only a strong, unambiguous correlation counts as a match. When in doubt, return null. Never guess.
3. Generic or ambiguous inputs get null.
4. Never match password, payment card, bank, one-time code (OTP) or CAPTCHA inputs. Return null for them.
5. When several inputs look alike, use the section context to tell them apart.
6. "matchedKey" must be an exact keyname from the list, in English, or null.

Reply with JSON only: {"matches":[{"inputId":<int>,"matchedKey":"<keyname>"|null}]}`

// Schema constrains the reply to the match response shape.
func Schema() llm.Schema {
	return llm.Schema{
		Name:   "field_matches",
		Strict: true,
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"matches": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"inputId": map[string]any{"type": "integer"},
							"matchedKey": map[string]any{
								"type":        []string{"string", "null"},
								"description": "The keyname from the candidate keys, or null if no match.",
							},
						},
						"required":             []string{"inputId", "matchedKey"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"matches"},
			"additionalProperties": false,
		},
	}
}

type candidateKey struct {
	Keyname     string `json:"keyname"`
	Description string `json:"description"`
	Sensitive   bool   `json:"sensitive"`
}

// BuildPrompt renders the matching prompt for batch.
func BuildPrompt(batch []types.FieldRequest, candidates []types.PersonalInfoItem) llm.Prompt {
	keys := make([]candidateKey, len(candidates))
	for i, c := range candidates {
		keys[i] = candidateKey{Keyname: c.Keyname, Description: c.Description, Sensitive: c.IsSecret}
	}
	fields := batch
	if fields == nil {
		fields = []types.FieldRequest{}
	}

	keysJSON, _ := json.MarshalIndent(keys, "", "  ")
	fieldsJSON, _ := json.MarshalIndent(fields, "", "  ")

	var b strings.Builder
	b.WriteString("Map each input to the best fitting key or null.\n\n")
	fmt.Fprintf(&b, "[Candidate keys]:\n%s\n\n", keysJSON)
	fmt.Fprintf(&b, "[Inputs]:\n%s\n\n", fieldsJSON)
	b.WriteString("[Constraints]:\n")
	b.WriteString("- \"inputId\" must be the exact integer id of an input above.\n")
	b.WriteString("- \"matchedKey\" must be the exact keyname or null.\n")
	b.WriteString("- Keys marked sensitive need an especially clear match.\n")
	b.WriteString("- Output language: English only.")

	return llm.Prompt{System: SystemInstructions, User: b.String()}
}
