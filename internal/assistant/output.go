package assistant

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// ErrProtocolViolation reports LLM output that breaks the {response, task}
// contract: malformed JSON, or both fields populated.
var ErrProtocolViolation = errors.New("assistant: protocol violation")

// Output kinds, as reported by [Output.Kind].
const (
	KindResponse = "response"
	KindTask     = "task"
	KindNone     = "none"
)

// Output is the model's structured verdict on one transcript. At most one
// field is non-empty.
type Output struct {
	// Response is spoken back to every connected client.
	Response string `json:"response"`

	// Task is a note the speaker made to themselves.
	Task string `json:"task"`
}

// Kind returns KindResponse, KindTask or KindNone.
func (o Output) Kind() string {
	switch {
	case o.Response != "":
		return KindResponse
	case o.Task != "":
		return KindTask
	default:
		return KindNone
	}
}

// OutputSchema is the JSON Schema the model is asked to follow.
var OutputSchema = &llm.ResponseSchema{
	Name:        "assistant_output",
	Description: "Either a short spoken response or a noted task; usually neither.",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{"type": "string"},
			"task":     map[string]any{"type": "string"},
		},
		"required":             []string{"response", "task"},
		"additionalProperties": false,
	},
}

// ParseOutput decodes raw model output into an Output, trimming whitespace
// from both fields.
//
// Unparseable output returns a zero Output and an error wrapping
// [ErrProtocolViolation]. When both fields are set the response wins: the
// returned Output has Task cleared and the error still wraps
// ErrProtocolViolation so the caller can log it.
func ParseOutput(raw string) (Output, error) {
	var out Output
	if err := json.Unmarshal([]byte(llm.ExtractJSON(raw)), &out); err != nil {
		return Output{}, fmt.Errorf("%w: decode output: %w", ErrProtocolViolation, err)
	}
	out.Response = strings.TrimSpace(out.Response)
	out.Task = strings.TrimSpace(out.Task)
	if out.Response != "" && out.Task != "" {
		dropped := out.Task
		out.Task = ""
		return out, fmt.Errorf("%w: both response and task set, dropping task %q", ErrProtocolViolation, dropped)
	}
	return out, nil
}
