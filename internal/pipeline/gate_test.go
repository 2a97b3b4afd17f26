package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// recordingSink collects enqueued transcripts.
type recordingSink struct {
	mu     sync.Mutex
	items  []Transcript
	reject bool
}

func (s *recordingSink) Enqueue(tr Transcript) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return false
	}
	s.items = append(s.items, tr)
	return true
}

func (s *recordingSink) Items() []Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Transcript(nil), s.items...)
}

func speechSegment(seq uint64) Segment {
	return Segment{
		Seq:            seq,
		PCM:            make([]byte, 3200),
		Format:         audio.DefaultFormat,
		Intervals:      []vad.Interval{{Start: 0, End: 100 * time.Millisecond}},
		ContainsSpeech: true,
	}
}

func TestGate_SilenceSkipsTranscriber(t *testing.T) {
	tr := &sttmock.Transcriber{Result: stt.Transcript{Text: "should not appear"}}
	sink := &recordingSink{}
	g, err := NewGate(tr, sink, GateConfig{}, testMetrics(t))
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}

	res, err := g.Process(context.Background(), "c1", Segment{Seq: 4, PCM: make([]byte, 3200), Format: audio.DefaultFormat})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "" || res.Speech || res.Relayed {
		t.Errorf("result = %+v, want empty non-speech result", res)
	}
	if res.Seq != 4 {
		t.Errorf("Seq = %d, want 4", res.Seq)
	}
	if tr.CallCount() != 0 {
		t.Errorf("transcriber called %d times, want 0", tr.CallCount())
	}
	if n := len(sink.Items()); n != 0 {
		t.Errorf("sink received %d items, want 0", n)
	}
}

func TestGate_SpeechTranscribedOnceAndRelayed(t *testing.T) {
	tr := &sttmock.Transcriber{Result: stt.Transcript{Text: "jarvis what time is it"}}
	sink := &recordingSink{}
	g, _ := NewGate(tr, sink, GateConfig{
		Language: "en",
		Prompt:   "You are a digital assistant named JARVIS",
	}, testMetrics(t))

	res, err := g.Process(context.Background(), "c1", speechSegment(1))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "jarvis what time is it" || !res.Speech || !res.Relayed {
		t.Errorf("result = %+v", res)
	}
	if tr.CallCount() != 1 {
		t.Fatalf("transcriber called %d times, want exactly 1", tr.CallCount())
	}
	req := tr.TranscribeCalls[0].Req
	if req.Language != "en" || req.Prompt != "You are a digital assistant named JARVIS" {
		t.Errorf("hints = %q / %q", req.Language, req.Prompt)
	}
	if req.Format != audio.DefaultFormat || len(req.PCM) != 3200 {
		t.Errorf("request audio = %d bytes in %v", len(req.PCM), req.Format)
	}

	items := sink.Items()
	if len(items) != 1 {
		t.Fatalf("sink received %d items, want 1", len(items))
	}
	if items[0].Text != "jarvis what time is it" || items[0].ClientID != "c1" || items[0].Seq != 1 {
		t.Errorf("relayed = %+v", items[0])
	}
}

func TestGate_TranscriberFailure(t *testing.T) {
	boom := errors.New("whisper unreachable")
	tr := &sttmock.Transcriber{TranscribeErr: boom}
	sink := &recordingSink{}
	g, _ := NewGate(tr, sink, GateConfig{}, testMetrics(t))

	_, err := g.Process(context.Background(), "c1", speechSegment(2))
	var ce *CapabilityError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want CapabilityError", err)
	}
	if ce.Capability != CapabilitySTT || ce.Seq != 2 || !errors.Is(err, boom) {
		t.Errorf("CapabilityError = %+v", ce)
	}
	if n := len(sink.Items()); n != 0 {
		t.Errorf("sink received %d items after failure, want 0", n)
	}
}

func TestGate_SinkRejection(t *testing.T) {
	tr := &sttmock.Transcriber{Result: stt.Transcript{Text: "hello"}}
	g, _ := NewGate(tr, &recordingSink{reject: true}, GateConfig{}, testMetrics(t))

	res, err := g.Process(context.Background(), "c1", speechSegment(1))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Text != "hello" || res.Relayed {
		t.Errorf("result = %+v, want text with Relayed=false", res)
	}
}

func TestGate_BoundsConcurrentTranscriptions(t *testing.T) {
	var inFlight, peak atomic.Int32
	tr := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, stt.Request) (stt.Transcript, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return stt.Transcript{Text: "x"}, nil
		},
	}
	g, _ := NewGate(tr, &recordingSink{}, GateConfig{MaxConcurrent: 2}, testMetrics(t))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Process(context.Background(), "c", speechSegment(uint64(i+1))); err != nil {
				t.Errorf("Process: %v", err)
			}
		}()
	}
	wg.Wait()

	if p := peak.Load(); p > 2 {
		t.Errorf("peak concurrent transcriptions = %d, want <= 2", p)
	}
	if tr.CallCount() != 8 {
		t.Errorf("calls = %d, want 8", tr.CallCount())
	}
}

func TestGate_CancelledWhileWaitingForSlot(t *testing.T) {
	release := make(chan struct{})
	tr := &sttmock.Transcriber{
		TranscribeFunc: func(context.Context, stt.Request) (stt.Transcript, error) {
			<-release
			return stt.Transcript{Text: "x"}, nil
		},
	}
	g, _ := NewGate(tr, &recordingSink{}, GateConfig{MaxConcurrent: 1}, testMetrics(t))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Process(context.Background(), "a", speechSegment(1))
	}()
	for tr.CallCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Process(ctx, "b", speechSegment(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if IsCapabilityError(err) {
		t.Error("waiting for a slot is not a capability failure")
	}

	close(release)
	<-done
}

func TestNewGate_RequiresCollaborators(t *testing.T) {
	if _, err := NewGate(nil, &recordingSink{}, GateConfig{}, nil); err == nil {
		t.Error("nil transcriber accepted")
	}
	if _, err := NewGate(&sttmock.Transcriber{}, nil, GateConfig{}, nil); err == nil {
		t.Error("nil sink accepted")
	}
}
