// Package mock provides a test double for [vad.Detector].
//
// Set Intervals for a fixed answer, or DetectFunc to classify each segment
// individually. Every call is recorded in DetectCalls.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// DetectCall records a single invocation of Detector.Detect.
type DetectCall struct {
	// Samples is a copy of the samples passed to Detect.
	Samples    []float32
	SampleRate int
}

// Detector is a mock implementation of vad.Detector.
type Detector struct {
	mu sync.Mutex

	// Intervals is returned by Detect when DetectFunc is nil.
	Intervals []vad.Interval

	// DetectErr, if non-nil, is returned by every Detect call.
	DetectErr error

	// DetectFunc, if set, computes the result of each call.
	DetectFunc func(samples []float32) ([]vad.Interval, error)

	// DetectCalls records every call to Detect in order.
	DetectCalls []DetectCall
}

// Detect records the call and returns the configured result.
func (d *Detector) Detect(_ context.Context, samples []float32, sampleRate int) ([]vad.Interval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	d.DetectCalls = append(d.DetectCalls, DetectCall{Samples: cp, SampleRate: sampleRate})
	if d.DetectErr != nil {
		return nil, d.DetectErr
	}
	if d.DetectFunc != nil {
		return d.DetectFunc(samples)
	}
	return d.Intervals, nil
}

// CallCount returns the number of Detect calls so far. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.DetectCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DetectCalls = nil
}

var _ vad.Detector = (*Detector)(nil)
