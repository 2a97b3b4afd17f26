// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// A Transcriber turns one complete, VAD-confirmed speech segment into text.
// The segment is raw 16-bit PCM; the Request carries its format plus optional
// recognition hints (language and an initial prompt that biases the decoder
// towards expected vocabulary such as the assistant's name).
//
// Transcription is batch oriented: one call per segment, one Transcript per
// call. Backends that are natively streaming (Deepgram) open a short-lived
// stream per call.
//
// Implementations must be safe for concurrent use; callers bound concurrency
// themselves.
package stt

import (
	"context"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// Request is one transcription job.
type Request struct {
	// PCM is the segment audio, 16-bit signed little-endian.
	PCM []byte

	// Format is the sample rate and channel count of PCM.
	Format audio.Format

	// Language is the BCP-47 language hint (e.g., "en"). Empty lets the
	// backend auto-detect, where supported.
	Language string

	// Prompt is an optional initial prompt biasing recognition. Backends
	// without prompt support ignore it.
	Prompt string
}

// Transcriber is the abstraction over any STT backend.
type Transcriber interface {
	// Transcribe returns the text spoken in req.PCM. A segment with no
	// intelligible words yields a Transcript with empty Text and a nil error.
	// Network, model or decoding failures are returned as errors.
	Transcribe(ctx context.Context, req Request) (Transcript, error)
}
