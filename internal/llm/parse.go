package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoJSONObject    = errors.New("no JSON object in provider output")
	ErrMissingQuestion = errors.New("provider output has no question")
)

// ProbeContent is the structured part of a provider's answer.
type ProbeContent struct {
	Question           string                        `json:"question"`
	Options            []string                      `json:"options,omitempty"`
	Mappings           map[string]map[string]float64 `json:"mappings,omitempty"`
	ConfidenceMappings map[string]map[string]float64 `json:"confidence_mappings,omitempty"`
	AnalysisHints      map[string]any                `json:"analysis_hints,omitempty"`
}

// DeltaTable returns whichever mapping table the provider filled in.
func (c *ProbeContent) DeltaTable() map[string]map[string]float64 {
	if len(c.Mappings) > 0 {
		return c.Mappings
	}
	return c.ConfidenceMappings
}

// ParseProbeContent extracts and decodes the JSON object embedded in raw.
func ParseProbeContent(raw string) (*ProbeContent, error) {
	obj, err := ExtractJSONObject(raw)
	if err != nil {
		return nil, err
	}

	var content ProbeContent
	if err := json.Unmarshal([]byte(obj), &content); err != nil {
		return nil, fmt.Errorf("parse probe content: %w (raw: %s)", err, obj)
	}
	content.Question = strings.TrimSpace(content.Question)
	if content.Question == "" {
		return nil, ErrMissingQuestion
	}
	return &content, nil
}

// ExtractJSONObject returns the JSON object inside a ```json fence if there is one,
// otherwise the first balanced {...} in text. Braces inside strings are ignored.
func ExtractJSONObject(text string) (string, error) {
	if fenced, ok := fencedBlock(text); ok {
		text = fenced
	}

	start := strings.IndexByte(text, '{')
	for start >= 0 {
		if end := matchBrace(text, start); end > start {
			return text[start : end+1], nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}

func fencedBlock(text string) (string, bool) {
	open := strings.Index(text, "```")
	if open < 0 {
		return "", false
	}
	body := text[open+3:]
	body = strings.TrimPrefix(body, "json")
	body = strings.TrimPrefix(body, "JSON")
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
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
				return i
			}
		}
	}
	return -1
}
