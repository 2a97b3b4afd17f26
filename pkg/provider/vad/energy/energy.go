// Package energy provides a pure-Go [vad.Detector] based on frame RMS levels.
//
// The segment is cut into fixed-size frames. A speech run starts once
// MinSpeech worth of consecutive frames reach SpeechThreshold and ends once
// MinSilence worth of consecutive frames fall below SilenceThreshold. Using
// two thresholds keeps the detector from flickering on levels near the
// boundary. Each reported interval is widened by SpeechPad on both sides and
// overlapping intervals are merged.
package energy

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

const (
	defaultFrameSize        = 30 * time.Millisecond
	defaultSpeechThreshold  = 0.015
	defaultSilenceThreshold = 0.008
	defaultMinSpeech        = 60 * time.Millisecond
	defaultMinSilence       = 300 * time.Millisecond
	defaultSpeechPad        = 30 * time.Millisecond
)

var _ vad.Detector = (*Detector)(nil)

// Option configures a [Detector].
type Option func(*Detector)

// WithFrameSize sets the analysis frame length. Default 30ms.
func WithFrameSize(d time.Duration) Option {
	return func(det *Detector) { det.frameSize = d }
}

// WithThresholds sets the RMS levels (0–1) that start and end speech.
// silence must not exceed speech.
func WithThresholds(speech, silence float64) Option {
	return func(det *Detector) {
		det.speechThreshold = speech
		det.silenceThreshold = silence
	}
}

// WithMinSpeech sets how long the level must stay above the speech threshold
// before a run starts. Default 60ms.
func WithMinSpeech(d time.Duration) Option {
	return func(det *Detector) { det.minSpeech = d }
}

// WithMinSilence sets how long the level must stay below the silence
// threshold before a run ends. Default 300ms.
func WithMinSilence(d time.Duration) Option {
	return func(det *Detector) { det.minSilence = d }
}

// WithSpeechPad sets the padding added around each interval. Default 30ms.
func WithSpeechPad(d time.Duration) Option {
	return func(det *Detector) { det.speechPad = d }
}

// Detector is an RMS energy detector with hysteresis.
type Detector struct {
	frameSize        time.Duration
	speechThreshold  float64
	silenceThreshold float64
	minSpeech        time.Duration
	minSilence       time.Duration
	speechPad        time.Duration
}

// New returns a Detector with defaults tuned for 16 kHz speech.
func New(opts ...Option) (*Detector, error) {
	det := &Detector{
		frameSize:        defaultFrameSize,
		speechThreshold:  defaultSpeechThreshold,
		silenceThreshold: defaultSilenceThreshold,
		minSpeech:        defaultMinSpeech,
		minSilence:       defaultMinSilence,
		speechPad:        defaultSpeechPad,
	}
	for _, o := range opts {
		o(det)
	}
	if det.frameSize <= 0 {
		return nil, fmt.Errorf("energy: frame size must be positive, got %v", det.frameSize)
	}
	if det.speechThreshold <= 0 || det.speechThreshold > 1 {
		return nil, fmt.Errorf("energy: speech threshold must be in (0, 1], got %v", det.speechThreshold)
	}
	if det.silenceThreshold < 0 || det.silenceThreshold > det.speechThreshold {
		return nil, fmt.Errorf("energy: silence threshold %v must be in [0, %v]", det.silenceThreshold, det.speechThreshold)
	}
	return det, nil
}

// Detect implements [vad.Detector].
func (d *Detector) Detect(ctx context.Context, samples []float32, sampleRate int) ([]vad.Interval, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate must be positive, got %d", sampleRate)
	}
	frameLen := int(int64(sampleRate) * int64(d.frameSize) / int64(time.Second))
	if frameLen <= 0 {
		return nil, fmt.Errorf("energy: frame size %v too short for %d Hz", d.frameSize, sampleRate)
	}
	minSpeechFrames := framesFor(d.minSpeech, d.frameSize)
	minSilenceFrames := framesFor(d.minSilence, d.frameSize)

	frames := len(samples) / frameLen
	var (
		spans      [][2]int // sample offsets
		inSpeech   bool
		start      int
		speechRun  int
		silenceRun int
	)
	for i := range frames {
		level := audio.RMS(samples[i*frameLen : (i+1)*frameLen])
		if !inSpeech {
			if level >= d.speechThreshold {
				speechRun++
				if speechRun >= minSpeechFrames {
					inSpeech = true
					start = (i - speechRun + 1) * frameLen
					silenceRun = 0
				}
			} else {
				speechRun = 0
			}
			continue
		}
		if level < d.silenceThreshold {
			silenceRun++
			if silenceRun >= minSilenceFrames {
				spans = append(spans, [2]int{start, (i - silenceRun + 1) * frameLen})
				inSpeech = false
				speechRun = 0
				silenceRun = 0
			}
		} else {
			silenceRun = 0
		}
	}
	if inSpeech {
		spans = append(spans, [2]int{start, (frames - silenceRun) * frameLen})
	}

	pad := int(int64(sampleRate) * int64(d.speechPad) / int64(time.Second))
	return toIntervals(spans, pad, len(samples), sampleRate), nil
}

func framesFor(d, frame time.Duration) int {
	n := int((d + frame - 1) / frame)
	return max(n, 1)
}

// toIntervals pads, clamps and merges sample spans and converts them to time
// offsets.
func toIntervals(spans [][2]int, pad, total, sampleRate int) []vad.Interval {
	var out []vad.Interval
	lastEnd := -1
	for _, s := range spans {
		lo := max(s[0]-pad, 0)
		hi := min(s[1]+pad, total)
		if len(out) > 0 && lo <= lastEnd {
			out[len(out)-1].End = offset(hi, sampleRate)
			lastEnd = hi
			continue
		}
		out = append(out, vad.Interval{Start: offset(lo, sampleRate), End: offset(hi, sampleRate)})
		lastEnd = hi
	}
	return out
}

func offset(sample, sampleRate int) time.Duration {
	return time.Duration(int64(sample) * int64(time.Second) / int64(sampleRate))
}
