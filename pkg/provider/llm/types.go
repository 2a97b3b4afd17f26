package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// ResponseSchema describes a JSON object the model must return.
type ResponseSchema struct {
	// Name identifies the schema to providers that require one
	// (letters, digits, underscores and dashes).
	Name string

	// Description is an optional human-readable summary.
	Description string

	// Schema is a JSON Schema document, e.g.
	// {"type":"object","properties":{...},"required":[...]}.
	Schema map[string]any
}

// Instruction renders the schema as a plain-text instruction for providers
// without native structured-output support.
func (s *ResponseSchema) Instruction() string {
	raw, err := json.Marshal(s.Schema)
	if err != nil {
		raw = []byte("{}")
	}
	var b strings.Builder
	b.WriteString("Reply with a single JSON object and nothing else. ")
	b.WriteString("Do not wrap it in markdown. The object must match this JSON Schema")
	if s.Name != "" {
		fmt.Fprintf(&b, " (%s)", s.Name)
	}
	b.WriteString(": ")
	b.Write(raw)
	return b.String()
}

// ExtractJSON returns the outermost JSON object in s, stripping markdown code
// fences and surrounding prose that some models add despite instructions.
// Returns s unchanged if no object is found.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```"); ok {
		s = strings.TrimPrefix(after, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
