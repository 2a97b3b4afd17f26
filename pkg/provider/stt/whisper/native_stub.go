//go:build !whispercpp

package whisper

import (
	"context"
	"errors"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// ErrNativeUnavailable is returned when the binary was built without the
// "whispercpp" tag.
var ErrNativeUnavailable = errors.New("whisper: native backend not compiled in (build with -tags whispercpp)")

// NativeAvailable reports whether the native backend is compiled in.
func NativeAvailable() bool { return false }

// NativeTranscriber is a placeholder when the native backend is absent.
type NativeTranscriber struct{}

// NativeOption configures a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage is accepted for API parity and has no effect.
func WithNativeLanguage(string) NativeOption {
	return func(*NativeTranscriber) {}
}

// NewNative always fails with [ErrNativeUnavailable].
func NewNative(string, ...NativeOption) (*NativeTranscriber, error) {
	return nil, ErrNativeUnavailable
}

// Close is a no-op.
func (t *NativeTranscriber) Close() error { return nil }

// Transcribe always fails with [ErrNativeUnavailable].
func (t *NativeTranscriber) Transcribe(context.Context, stt.Request) (stt.Transcript, error) {
	return stt.Transcript{}, ErrNativeUnavailable
}
