package task

import (
	"encoding/json"
	"strings"
)

// Output is the canonical record of a completed task. Result is the text
// handed to downstream tasks; RawOutput preserves the agent's response
// verbatim.
type Output struct {
	Result         string                 `json:"result"`
	RawOutput      string                 `json:"raw_output"`
	Summary        string                 `json:"summary,omitempty"`
	StructuredData map[string]interface{} `json:"structured_data,omitempty"`
	Notes          []string               `json:"notes,omitempty"`
}

// ParseOutput wraps an agent response into an Output. When the response ends
// with a JSON object (fenced or bare), it is decoded into StructuredData; the
// text result is unaffected either way.
func ParseOutput(response string) *Output {
	out := &Output{
		Result:    response,
		RawOutput: response,
		Summary:   summarize(response),
	}

	jsonStr := extractLastJSONBlock(response)
	if jsonStr == "" {
		jsonStr = extractRawJSON(response)
	}
	if jsonStr != "" {
		var parsed map[string]interface{}
		if err := json.Unmarshal([]byte(jsonStr), &parsed); err == nil {
			out.StructuredData = parsed
		}
	}

	return out
}

// summarize returns the first line of the response, capped at 200 bytes.
func summarize(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

// extractLastJSONBlock finds the last ```json ... ``` fenced code block.
func extractLastJSONBlock(text string) string {
	lastIdx := -1
	searchFrom := 0
	for {
		idx := strings.Index(text[searchFrom:], "```json")
		if idx < 0 {
			break
		}
		lastIdx = searchFrom + idx
		searchFrom = lastIdx + 7
	}
	if lastIdx < 0 {
		return ""
	}

	start := lastIdx + 7 // skip "```json"
	for start < len(text) && (text[start] == ' ' || text[start] == '\t' || text[start] == '\n' || text[start] == '\r') {
		start++
	}

	end := strings.Index(text[start:], "```")
	if end < 0 {
		return ""
	}

	return strings.TrimSpace(text[start : start+end])
}

// extractRawJSON finds the last top-level JSON object {...} in the text.
func extractRawJSON(text string) string {
	for i := len(text) - 1; i >= 0; i-- {
		if text[i] != '}' {
			continue
		}
		depth := 0
		for j := i; j >= 0; j-- {
			switch text[j] {
			case '}':
				depth++
			case '{':
				depth--
			}
			if depth == 0 {
				candidate := strings.TrimSpace(text[j : i+1])
				var parsed map[string]interface{}
				if json.Unmarshal([]byte(candidate), &parsed) == nil {
					return candidate
				}
				return ""
			}
		}
		break
	}
	return ""
}
