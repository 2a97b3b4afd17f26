// Package assistant owns the consumer side of the transcript flow.
//
// Connection handlers enqueue transcripts on a [Relay]. A single [Worker]
// drains it, keeps the last few lines in a [ContextWindow], asks the LLM for
// a structured [Output], and either broadcasts the spoken response or hands
// the noted task to a [TaskSink]. The worker never blocks the handlers: the
// relay is bounded and applies an overflow policy instead of waiting.
package assistant
