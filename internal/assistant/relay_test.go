package assistant

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/jarvis/internal/observe"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newRelay(t *testing.T, capacity int, policy OverflowPolicy) *Relay {
	t.Helper()
	r, err := NewRelay(capacity, policy, testMetrics(t))
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return r
}

func rec(text string) Record { return Record{ClientID: "c", Text: text} }

func TestRelay_FIFO(t *testing.T) {
	r := newRelay(t, 4, DropOldest)
	for _, s := range []string{"a", "b", "c"} {
		if !r.Enqueue(rec(s)) {
			t.Fatalf("Enqueue(%q) rejected", s)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		got, ok := r.Dequeue(context.Background(), time.Second)
		if !ok || got.Text != want {
			t.Fatalf("Dequeue = %q, %v; want %q", got.Text, ok, want)
		}
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}

func TestRelay_DropOldest(t *testing.T) {
	r := newRelay(t, 2, DropOldest)
	r.Enqueue(rec("a"))
	r.Enqueue(rec("b"))
	if !r.Enqueue(rec("c")) {
		t.Fatal("drop_oldest must accept the new record")
	}
	if r.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", r.Dropped())
	}
	first, _ := r.Dequeue(context.Background(), time.Second)
	second, _ := r.Dequeue(context.Background(), time.Second)
	if first.Text != "b" || second.Text != "c" {
		t.Errorf("queue = [%q %q], want [b c]", first.Text, second.Text)
	}
}

func TestRelay_RejectNew(t *testing.T) {
	r := newRelay(t, 2, RejectNew)
	r.Enqueue(rec("a"))
	r.Enqueue(rec("b"))
	if r.Enqueue(rec("c")) {
		t.Fatal("reject_new must refuse the new record")
	}
	if r.Dropped() != 1 || r.Len() != 2 {
		t.Errorf("Dropped = %d, Len = %d; want 1, 2", r.Dropped(), r.Len())
	}
	first, _ := r.Dequeue(context.Background(), time.Second)
	if first.Text != "a" {
		t.Errorf("head = %q, want a", first.Text)
	}
}

func TestRelay_DequeueTimeout(t *testing.T) {
	r := newRelay(t, 1, "")
	start := time.Now()
	if _, ok := r.Dequeue(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("Dequeue on empty relay returned a record")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Dequeue returned before the timeout")
	}
	if r.Policy() != DropOldest {
		t.Errorf("default policy = %q, want drop_oldest", r.Policy())
	}
}

func TestRelay_DequeueCancelled(t *testing.T) {
	r := newRelay(t, 1, DropOldest)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := r.Dequeue(ctx, time.Hour); ok {
		t.Fatal("Dequeue with cancelled context returned a record")
	}
}

func TestRelay_EnqueueNeverBlocks(t *testing.T) {
	r := newRelay(t, 8, DropOldest)

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				r.Enqueue(rec(fmt.Sprintf("%d-%d", p, i)))
			}
		}()
	}
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producers blocked on a full relay")
	}
	if r.Len() != 8 {
		t.Errorf("Len = %d, want 8", r.Len())
	}
	if r.Dropped() != 400-8 {
		t.Errorf("Dropped = %d, want %d", r.Dropped(), 400-8)
	}
}

func TestRelay_PerProducerOrder(t *testing.T) {
	r := newRelay(t, 100, DropOldest)
	for i := range 10 {
		r.Enqueue(Record{ClientID: "a", Seq: uint64(i)})
		r.Enqueue(Record{ClientID: "b", Seq: uint64(i)})
	}
	next := map[string]uint64{}
	for range 20 {
		got, ok := r.Dequeue(context.Background(), time.Second)
		if !ok {
			t.Fatal("relay drained early")
		}
		if got.Seq != next[got.ClientID] {
			t.Fatalf("client %s: seq %d, want %d", got.ClientID, got.Seq, next[got.ClientID])
		}
		next[got.ClientID]++
	}
}

func TestNewRelay_Invalid(t *testing.T) {
	if _, err := NewRelay(0, DropOldest, nil); err == nil {
		t.Error("zero capacity accepted")
	}
	if _, err := NewRelay(1, "block", nil); err == nil {
		t.Error("unknown policy accepted")
	}
}
