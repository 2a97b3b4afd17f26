package pipeline

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// Classifier tags segments as speech or silence using a [vad.Detector].
// It is safe for concurrent use if the detector is.
type Classifier struct {
	detector vad.Detector
	metrics  *observe.Metrics
}

// NewClassifier returns a Classifier backed by d. A nil m selects
// [observe.DefaultMetrics].
func NewClassifier(d vad.Detector, m *observe.Metrics) (*Classifier, error) {
	if d == nil {
		return nil, errors.New("pipeline: classifier requires a detector")
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Classifier{detector: d, metrics: m}, nil
}

// Classify runs voice activity detection over seg and returns it with
// Intervals and ContainsSpeech set. Detector failures are returned as a
// [*CapabilityError].
func (c *Classifier) Classify(ctx context.Context, seg Segment) (Segment, error) {
	ctx, span := observe.StartSpan(ctx, "pipeline.vad",
		trace.WithAttributes(
			attribute.Int64("segment.seq", int64(seg.Seq)),
			attribute.Int("segment.bytes", len(seg.PCM)),
		),
	)
	start := time.Now()

	samples := audio.PCMToFloat32(seg.PCM, seg.Format.Channels)
	intervals, err := c.detector.Detect(ctx, samples, seg.Format.SampleRate)

	c.metrics.VADDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.metrics.RecordProviderError(ctx, "vad", CapabilityVAD)
		err = &CapabilityError{Capability: CapabilityVAD, Seq: seg.Seq, Err: err}
		observe.EndSpan(span, err)
		return seg, err
	}

	seg.Intervals = intervals
	seg.ContainsSpeech = vad.HasSpeech(intervals)
	c.metrics.RecordSegment(ctx, seg.ContainsSpeech)
	span.SetAttributes(attribute.Bool("segment.speech", seg.ContainsSpeech))
	observe.EndSpan(span, nil)
	return seg, nil
}
