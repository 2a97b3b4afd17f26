// Package pipeline turns one client's inbound audio messages into transcripts.
//
// Each connection owns a [Stream]. A stream cuts messages into segments with
// a [Segmenter], asks a voice activity [Classifier] whether a segment holds
// speech, and passes the result through the [Gate]: silence yields an empty
// transcript without touching the transcriber, speech is transcribed exactly
// once and the text is handed to a [Sink] for the assistant.
//
// Streams are confined to their connection's goroutine. The Classifier and
// Gate are shared by all streams; the Gate bounds the number of concurrent
// transcriptions process-wide.
package pipeline
