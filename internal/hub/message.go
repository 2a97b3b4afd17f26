// Package hub tracks connected clients and delivers server messages to them.
//
// The [Hub] is the connection registry: handlers register a [Client] before
// their first read and unregister it when they exit. Broadcast fans a
// message out to a snapshot of the registry concurrently; one slow or broken
// client never delays or fails delivery to the others.
package hub

// Message types sent to clients.
const (
	TypeTranscript = "transcript"
	TypeLLM        = "llm"
)

// Message is one JSON text frame sent to a client.
type Message struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Transcript returns the per-cycle reply for text. Empty text means the
// cycle held no speech.
func Transcript(text string) Message { return Message{Type: TypeTranscript, Data: text} }

// LLM returns the spoken assistant response broadcast to every client.
func LLM(response string) Message { return Message{Type: TypeLLM, Data: response} }
