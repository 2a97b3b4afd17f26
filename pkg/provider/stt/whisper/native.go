//go:build whispercpp

// The native transcriber links the whisper.cpp static library (libwhisper.a).
// Headers and library must be reachable through C_INCLUDE_PATH and
// LIBRARY_PATH at build time.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var _ stt.Transcriber = (*NativeTranscriber)(nil)

// NativeAvailable reports whether the native backend is compiled in.
func NativeAvailable() bool { return true }

// NativeTranscriber runs whisper.cpp in-process. The model is loaded once and
// shared; every call creates its own inference context, so concurrent calls
// do not interfere.
type NativeTranscriber struct {
	model    whisperlib.Model
	language string
}

// NativeOption configures a NativeTranscriber.
type NativeOption func(*NativeTranscriber)

// WithNativeLanguage sets the default language hint. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(t *NativeTranscriber) { t.language = lang }
}

// NewNative loads the model at modelPath. The caller must call Close.
func NewNative(modelPath string, opts ...NativeOption) (*NativeTranscriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	t := &NativeTranscriber{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the model.
func (t *NativeTranscriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe implements [stt.Transcriber].
func (t *NativeTranscriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if len(req.PCM) == 0 {
		return stt.Transcript{}, nil
	}
	f := req.Format
	if f.SampleRate == 0 {
		f = audio.DefaultFormat
	}
	lang := req.Language
	if lang == "" {
		lang = t.language
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(lang); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	if err := wctx.Process(audio.PCMToFloat32(req.PCM, f.Channels), nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: lang,
		Duration: f.Duration(req.PCM),
	}, nil
}
