package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Draft is the parsed generation payload.
type Draft struct {
	Content     string `json:"content"`
	ImagePrompt string `json:"imagePrompt"`
}

// ParseDraft extracts the post draft from raw model text. The model may
// wrap the JSON object in prose or code fences; the first balanced {...}
// object is parsed, accepting either {"post": {...}} or a bare object.
func ParseDraft(text string) (*Draft, error) {
	raw, ok := extractJSONObject(text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var envelope struct {
		Post        *Draft `json:"post"`
		Content     string `json:"content"`
		ImagePrompt string `json:"imagePrompt"`
	}
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	draft := envelope.Post
	if draft == nil {
		draft = &Draft{Content: envelope.Content, ImagePrompt: envelope.ImagePrompt}
	}
	if draft.Content == "" {
		return nil, fmt.Errorf("%w: missing content field", ErrMalformedResponse)
	}

	return draft, nil
}

// extractJSONObject returns the first balanced top-level JSON object in
// text. Braces inside JSON strings do not count toward the balance.
func extractJSONObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}
