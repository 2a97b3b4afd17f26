// Package vad defines the Detector interface for Voice Activity Detection
// backends.
//
// A Detector is handed one complete audio segment (already decoded to float32
// samples in [-1, 1]) and reports the intervals that contain speech. An empty
// result means the segment is silence and must not be transcribed.
//
// Detectors are stateless across calls: every segment is classified on its
// own, so a single Detector may be shared by all connections. Implementations
// must be safe for concurrent use.
package vad

import (
	"context"
	"time"
)

// Detector classifies an audio segment into speech intervals.
type Detector interface {
	// Detect returns the speech intervals found in samples, in ascending order
	// and non-overlapping. sampleRate is the rate of samples in Hz.
	//
	// A nil or empty slice means no speech. An error means the detector could
	// not classify the segment at all.
	Detect(ctx context.Context, samples []float32, sampleRate int) ([]Interval, error)
}

// Interval is a span of detected speech, as offsets from the segment start.
type Interval struct {
	Start time.Duration
	End   time.Duration
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End - iv.Start
}

// HasSpeech reports whether intervals contains at least one non-empty span.
func HasSpeech(intervals []Interval) bool {
	for _, iv := range intervals {
		if iv.End > iv.Start {
			return true
		}
	}
	return false
}

// TotalSpeech sums the duration of all intervals.
func TotalSpeech(intervals []Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}
