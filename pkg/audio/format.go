// Package audio holds the PCM primitives shared by the ingest pipeline and the
// speech providers: the fixed wire format, payload decoding, WAV framing and
// sample conversion.
//
// All audio handled by jarvis is 16-bit signed little-endian PCM. A client
// sends it either as raw samples or wrapped in a RIFF/WAV container; both are
// normalised to raw PCM by [Decode].
package audio

import (
	"fmt"
	"time"
)

// BytesPerSample is the width of one 16-bit PCM sample.
const BytesPerSample = 2

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, the format clients stream by default.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// Validate reports whether f describes a usable PCM stream.
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("audio: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("audio: channels must be positive, got %d", f.Channels)
	}
	return nil
}

// FrameSize returns the number of bytes in one multi-channel sample frame.
func (f Format) FrameSize() int {
	return f.Channels * BytesPerSample
}

// BytesPerSecond returns the byte rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.FrameSize()
}

// Duration returns the playback length of pcm in format f. Returns 0 for an
// invalid format.
func (f Format) Duration(pcm []byte) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(len(pcm)) * int64(time.Second) / int64(bps))
}

// BytesFor returns the number of bytes needed to hold d of audio in format f,
// rounded down to a whole frame.
func (f Format) BytesFor(d time.Duration) int {
	n := int(int64(f.BytesPerSecond()) * int64(d) / int64(time.Second))
	if fs := f.FrameSize(); fs > 0 {
		n -= n % fs
	}
	return n
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}
