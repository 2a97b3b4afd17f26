package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
)

// Pipeline holds the components shared by every connection's [Stream].
type Pipeline struct {
	segmenter  SegmenterConfig
	classifier *Classifier
	gate       *Gate
	metrics    *observe.Metrics
}

// New validates the segmenter configuration and returns a Pipeline. A nil m
// selects [observe.DefaultMetrics].
func New(seg SegmenterConfig, c *Classifier, g *Gate, m *observe.Metrics) (*Pipeline, error) {
	if c == nil || g == nil {
		return nil, errors.New("pipeline: classifier and gate are required")
	}
	if _, err := NewSegmenter(seg); err != nil {
		return nil, err
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Pipeline{segmenter: seg, classifier: c, gate: g, metrics: m}, nil
}

// NewStream returns a Stream for one connection.
func (p *Pipeline) NewStream(clientID string) *Stream {
	// Config was validated in New.
	seg, _ := NewSegmenter(p.segmenter)
	return &Stream{p: p, clientID: clientID, seg: seg}
}

// Stream runs one connection's audio through segmentation, classification,
// and the gate. It must be used from a single goroutine.
type Stream struct {
	p        *Pipeline
	clientID string
	seg      *Segmenter
}

// Push feeds one inbound message through the stream. It returns nil, nil
// while a threshold-mode segment is still filling up, and the gate's
// [Result] when a cycle completes.
//
// Errors are per cycle: an [*audio.DecodeError] for undecodable payloads
// or a [*CapabilityError] for VAD or transcription failures. The stream stays
// usable after any of them.
func (s *Stream) Push(ctx context.Context, chunk []byte) (*Result, error) {
	seg, ready, err := s.seg.Push(chunk)
	if err != nil {
		if audio.IsDecodeError(err) {
			s.p.metrics.DecodeErrors.Add(ctx, 1)
		}
		return nil, err
	}
	if !ready {
		return nil, nil
	}

	seg, err = s.p.classifier.Classify(ctx, seg)
	if err != nil {
		return nil, err
	}
	res, err := s.p.gate.Process(ctx, s.clientID, seg)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Pending returns the number of buffered bytes awaiting a full segment.
func (s *Stream) Pending() int { return s.seg.Pending() }

// Close discards any partial segment. Audio buffered at disconnect is never
// flushed.
func (s *Stream) Close() {
	if n := s.seg.Pending(); n > 0 {
		slog.Debug("discarding partial segment", "client_id", s.clientID, "bytes", n)
	}
	s.seg.Reset()
}
