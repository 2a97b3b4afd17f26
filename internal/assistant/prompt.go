package assistant

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// DefaultPersona returns the built-in system prompt for an assistant
// called name.
func DefaultPersona(name string) string {
	return fmt.Sprintf(`Your name is %[1]s. You are a helpful virtual assistant.

You will receive what a person said out loud. Most of the time they are talking to themselves. When they want something from you they always call you by name (%[1]s).

If they ask you something, answer in at most two short sentences and put the answer in the "response" field.
If instead they note something to themselves that reads as a task, summarize it and put it in the "task" field.
Otherwise leave both fields empty.
Fill in a field only when you are certain it is wanted; an unnecessary reply interrupts the speaker's train of thought.

Keep responses to a sentence or two. If fulfilling a request would take more than that, assume it was not meant for you and leave both fields empty.
Do not ask follow-up questions.`, name)
}

// PromptConfig configures a [PromptBuilder].
type PromptConfig struct {
	// Name is the assistant's wake name.
	Name string

	// Persona overrides [DefaultPersona].
	Persona string

	Temperature float64
	MaxTokens   int

	// Wake, if set, annotates transcripts that address the assistant.
	Wake *WakeMatcher
}

// PromptBuilder renders completion requests for the worker. The persona can
// be swapped while the worker runs.
type PromptBuilder struct {
	name        string
	persona     atomic.Pointer[string]
	temperature float64
	maxTokens   int
	wake        *WakeMatcher
}

// NewPromptBuilder returns a builder for cfg.
func NewPromptBuilder(cfg PromptConfig) *PromptBuilder {
	b := &PromptBuilder{
		name:        cfg.Name,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		wake:        cfg.Wake,
	}
	b.SetPersona(cfg.Persona)
	return b
}

// SetPersona replaces the system prompt. An empty persona restores
// [DefaultPersona].
func (b *PromptBuilder) SetPersona(persona string) {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona(b.name)
	}
	b.persona.Store(&persona)
}

// Persona returns the system prompt in effect.
func (b *PromptBuilder) Persona() string { return *b.persona.Load() }

// Build returns the request for text, given the lines that preceded it
// (oldest first).
func (b *PromptBuilder) Build(history []string, text string) llm.CompletionRequest {
	var msgs []llm.Message
	if len(history) > 0 {
		msgs = append(msgs, llm.Message{
			Role:    llm.RoleUser,
			Content: "What the speaker said just before, oldest first:\n" + strings.Join(history, "\n"),
		})
	}

	var input strings.Builder
	input.WriteString("The input: ")
	input.WriteString(text)
	if b.wake != nil {
		if ok, _ := b.wake.Addressed(text); ok {
			fmt.Fprintf(&input, "\n\n(The speaker appears to address you as %s.)", b.name)
		}
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: input.String()})

	return llm.CompletionRequest{
		SystemPrompt:   b.Persona(),
		Messages:       msgs,
		Temperature:    b.temperature,
		MaxTokens:      b.maxTokens,
		ResponseSchema: OutputSchema,
	}
}
