// Package mock provides a test double for [stt.Transcriber].
//
// Example:
//
//	tr := &mock.Transcriber{Result: stt.Transcript{Text: "hello"}}
//	got, _ := tr.Transcribe(ctx, req)
//	len(tr.TranscribeCalls) // 1
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// Req is the request passed to Transcribe; PCM is copied.
	Req stt.Request
}

// Transcriber is a mock implementation of stt.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Transcript

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// TranscribeFunc, if set, overrides Result and TranscribeErr.
	TranscribeFunc func(ctx context.Context, req stt.Request) (stt.Transcript, error)

	// TranscribeCalls records every call to Transcribe in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the configured result.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	t.mu.Lock()
	cp := req
	cp.PCM = append([]byte(nil), req.PCM...)
	t.TranscribeCalls = append(t.TranscribeCalls, TranscribeCall{Req: cp})
	fn, result, err := t.TranscribeFunc, t.Result, t.TranscribeErr
	t.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// CallCount returns the number of Transcribe calls so far. Thread-safe.
func (t *Transcriber) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.TranscribeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (t *Transcriber) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranscribeCalls = nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
