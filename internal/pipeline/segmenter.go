package pipeline

import (
	"fmt"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// Mode selects where one segment ends.
type Mode string

const (
	// ModeMessage makes every inbound message its own segment.
	ModeMessage Mode = "message"

	// ModeThreshold accumulates messages until the buffer reaches
	// SegmenterConfig.SegmentBytes, then emits the whole buffer.
	ModeThreshold Mode = "threshold"
)

// Segment is one accumulation cycle's audio. Intervals and ContainsSpeech
// are filled in by a [Classifier].
type Segment struct {
	// Seq numbers segments per stream, starting at 1.
	Seq uint64

	// PCM is mono or interleaved PCM16LE in Format.
	PCM    []byte
	Format audio.Format

	Intervals      []vad.Interval
	ContainsSpeech bool
}

// Duration returns the length of the segment's audio.
func (s Segment) Duration() time.Duration { return s.Format.Duration(s.PCM) }

// SegmenterConfig configures a [Segmenter].
type SegmenterConfig struct {
	Mode         Mode
	Format       audio.Format
	SegmentBytes int
}

// Segmenter accumulates one connection's decoded audio into segments.
// It is not safe for concurrent use.
type Segmenter struct {
	mode      Mode
	format    audio.Format
	threshold int

	buf []byte
	seq uint64
}

// NewSegmenter validates cfg and returns an empty Segmenter.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeMessage
	}
	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline: segmenter: %w", err)
	}
	switch cfg.Mode {
	case ModeMessage:
	case ModeThreshold:
		if cfg.SegmentBytes <= 0 || cfg.SegmentBytes%cfg.Format.FrameSize() != 0 {
			return nil, fmt.Errorf("pipeline: segmenter: segment bytes %d must be a positive multiple of %d",
				cfg.SegmentBytes, cfg.Format.FrameSize())
		}
	default:
		return nil, fmt.Errorf("pipeline: segmenter: unknown mode %q", cfg.Mode)
	}
	return &Segmenter{
		mode:      cfg.Mode,
		format:    cfg.Format,
		threshold: cfg.SegmentBytes,
	}, nil
}

// Push decodes chunk and appends it to the buffer. When the chunk completes a
// segment, Push returns it with ready set and the buffer starts over.
//
// An undecodable chunk aborts the current cycle: the buffer is reset and the
// returned error is an [*audio.DecodeError].
func (s *Segmenter) Push(chunk []byte) (seg Segment, ready bool, err error) {
	pcm, err := audio.Decode(chunk, s.format)
	if err != nil {
		s.Reset()
		return Segment{}, false, err
	}

	if s.mode == ModeMessage {
		return s.emit(pcm), true, nil
	}

	s.buf = append(s.buf, pcm...)
	if len(s.buf) < s.threshold {
		return Segment{}, false, nil
	}
	out := s.buf
	s.buf = nil
	return s.emit(out), true, nil
}

// Pending returns the number of buffered bytes not yet emitted.
func (s *Segmenter) Pending() int { return len(s.buf) }

// Reset discards any partial buffer.
func (s *Segmenter) Reset() { s.buf = nil }

func (s *Segmenter) emit(pcm []byte) Segment {
	s.seq++
	return Segment{Seq: s.seq, PCM: pcm, Format: s.format}
}
