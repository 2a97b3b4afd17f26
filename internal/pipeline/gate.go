package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
)

// Transcript is one speech segment's text on its way to the assistant.
type Transcript struct {
	ClientID string
	Seq      uint64
	Text     string
	At       time.Time
}

// Sink receives transcripts of speech segments. Enqueue must not block; it
// reports whether the transcript was accepted.
type Sink interface {
	Enqueue(Transcript) bool
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(Transcript) bool

// Enqueue calls f(t).
func (f SinkFunc) Enqueue(t Transcript) bool { return f(t) }

// GateConfig configures a [Gate].
type GateConfig struct {
	// Language and Prompt are forwarded to the transcriber as hints.
	Language string
	Prompt   string

	// MaxConcurrent bounds in-flight transcriptions across all streams.
	// Default 4.
	MaxConcurrent int

	// ProviderName labels transcription metrics. Default "stt".
	ProviderName string
}

// Result is the outcome of one gated segment.
type Result struct {
	Seq    uint64
	Text   string
	Speech bool

	// Relayed is true when a speech transcript was accepted by the sink.
	Relayed bool
}

// Gate transcribes speech segments and skips silent ones. It is shared by
// all streams and safe for concurrent use.
type Gate struct {
	transcriber stt.Transcriber
	sink        Sink
	sem         *semaphore.Weighted
	language    string
	prompt      string
	provider    string
	metrics     *observe.Metrics
}

// NewGate returns a Gate that transcribes with t and relays to sink. A nil m
// selects [observe.DefaultMetrics].
func NewGate(t stt.Transcriber, sink Sink, cfg GateConfig, m *observe.Metrics) (*Gate, error) {
	if t == nil {
		return nil, errors.New("pipeline: gate requires a transcriber")
	}
	if sink == nil {
		return nil, errors.New("pipeline: gate requires a sink")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "stt"
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Gate{
		transcriber: t,
		sink:        sink,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		language:    cfg.Language,
		prompt:      cfg.Prompt,
		provider:    cfg.ProviderName,
		metrics:     m,
	}, nil
}

// Process gates one classified segment.
//
// A segment without speech returns an empty Result and never reaches the
// transcriber or the sink. A speech segment is transcribed exactly once and
// the transcript is enqueued on the sink. Transcriber failures are returned
// as a [*CapabilityError] and nothing is enqueued.
func (g *Gate) Process(ctx context.Context, clientID string, seg Segment) (Result, error) {
	res := Result{Seq: seg.Seq, Speech: seg.ContainsSpeech}
	if !seg.ContainsSpeech {
		return res, nil
	}

	ctx, span := observe.StartSpan(ctx, "pipeline.transcribe",
		trace.WithAttributes(
			attribute.String("client.id", clientID),
			attribute.Int64("segment.seq", int64(seg.Seq)),
		),
	)
	start := time.Now()

	if err := g.sem.Acquire(ctx, 1); err != nil {
		err = fmt.Errorf("pipeline: wait for transcription slot: %w", err)
		observe.EndSpan(span, err)
		return res, err
	}
	tr, err := g.transcriber.Transcribe(ctx, stt.Request{
		PCM:      seg.PCM,
		Format:   seg.Format,
		Language: g.language,
		Prompt:   g.prompt,
	})
	g.sem.Release(1)

	g.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		g.metrics.RecordProviderRequest(ctx, g.provider, CapabilitySTT, "error")
		g.metrics.RecordProviderError(ctx, g.provider, CapabilitySTT)
		err = &CapabilityError{Capability: CapabilitySTT, Seq: seg.Seq, Err: err}
		observe.EndSpan(span, err)
		return res, err
	}
	g.metrics.RecordProviderRequest(ctx, g.provider, CapabilitySTT, "ok")

	res.Text = tr.Text
	res.Relayed = g.sink.Enqueue(Transcript{
		ClientID: clientID,
		Seq:      seg.Seq,
		Text:     tr.Text,
		At:       time.Now(),
	})
	span.SetAttributes(
		attribute.Int("transcript.length", len(tr.Text)),
		attribute.Bool("transcript.relayed", res.Relayed),
	)
	observe.EndSpan(span, nil)
	return res, nil
}
