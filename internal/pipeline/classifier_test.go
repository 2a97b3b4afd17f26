package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	vadmock "github.com/MrWong99/jarvis/pkg/provider/vad/mock"
)

func TestClassifier_TagsSpeech(t *testing.T) {
	det := &vadmock.Detector{Intervals: []vad.Interval{{Start: 10 * time.Millisecond, End: 80 * time.Millisecond}}}
	c, err := NewClassifier(det, testMetrics(t))
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	seg, err := c.Classify(context.Background(), Segment{Seq: 3, PCM: make([]byte, 3200), Format: audio.DefaultFormat})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !seg.ContainsSpeech || len(seg.Intervals) != 1 {
		t.Errorf("segment = speech %v, intervals %v", seg.ContainsSpeech, seg.Intervals)
	}

	if det.CallCount() != 1 {
		t.Fatalf("detector called %d times, want 1", det.CallCount())
	}
	call := det.DetectCalls[0]
	if len(call.Samples) != 1600 {
		t.Errorf("detector got %d samples, want 1600", len(call.Samples))
	}
	if call.SampleRate != audio.DefaultFormat.SampleRate {
		t.Errorf("detector sample rate = %d", call.SampleRate)
	}
}

func TestClassifier_NoIntervalsIsSilence(t *testing.T) {
	c, err := NewClassifier(&vadmock.Detector{}, testMetrics(t))
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	seg, err := c.Classify(context.Background(), Segment{PCM: make([]byte, 320), Format: audio.DefaultFormat})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if seg.ContainsSpeech {
		t.Error("segment without intervals classified as speech")
	}
}

func TestClassifier_DetectorFailure(t *testing.T) {
	boom := errors.New("model not loaded")
	c, err := NewClassifier(&vadmock.Detector{DetectErr: boom}, testMetrics(t))
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}

	_, err = c.Classify(context.Background(), Segment{Seq: 9, PCM: make([]byte, 320), Format: audio.DefaultFormat})
	var ce *CapabilityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *CapabilityError", err)
	}
	if ce.Capability != CapabilityVAD || ce.Seq != 9 || !errors.Is(err, boom) {
		t.Errorf("CapabilityError = %+v", ce)
	}
}

func TestNewClassifier_RequiresDetector(t *testing.T) {
	if _, err := NewClassifier(nil, testMetrics(t)); err == nil {
		t.Fatal("expected error for nil detector")
	}
}
