package assistant

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/pipeline"
)

// Record is one transcript waiting for the worker.
type Record = pipeline.Transcript

// OverflowPolicy decides which record is lost when the relay is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued record to make room.
	DropOldest OverflowPolicy = "drop_oldest"

	// RejectNew refuses the incoming record.
	RejectNew OverflowPolicy = "reject_new"
)

var _ pipeline.Sink = (*Relay)(nil)

// Relay is a bounded FIFO between connection handlers and the worker.
// Enqueue never blocks. It is safe for concurrent use by any number of
// producers and one consumer.
type Relay struct {
	ch      chan Record
	policy  OverflowPolicy
	metrics *observe.Metrics

	// mu serialises producers so an eviction always frees the slot it
	// was made for.
	mu      sync.Mutex
	dropped atomic.Uint64
}

// NewRelay returns a relay holding at most capacity records. A nil m selects
// [observe.DefaultMetrics].
func NewRelay(capacity int, policy OverflowPolicy, m *observe.Metrics) (*Relay, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("assistant: relay capacity must be positive, got %d", capacity)
	}
	switch policy {
	case "":
		policy = DropOldest
	case DropOldest, RejectNew:
	default:
		return nil, fmt.Errorf("assistant: unknown overflow policy %q", policy)
	}
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Relay{
		ch:      make(chan Record, capacity),
		policy:  policy,
		metrics: m,
	}, nil
}

// Enqueue adds rec to the tail of the queue and reports whether rec was
// accepted. When the relay is full the overflow policy applies and the drop
// counter is incremented.
func (r *Relay) Enqueue(rec Record) bool {
	ctx := context.Background()

	r.mu.Lock()
	defer r.mu.Unlock()

	select {
	case r.ch <- rec:
		r.metrics.RelayDepth.Add(ctx, 1)
		return true
	default:
	}

	if r.policy == RejectNew {
		r.drop(ctx)
		return false
	}

	select {
	case <-r.ch:
		r.metrics.RelayDepth.Add(ctx, -1)
		r.drop(ctx)
	default:
	}
	select {
	case r.ch <- rec:
		r.metrics.RelayDepth.Add(ctx, 1)
		return true
	default:
		r.drop(ctx)
		return false
	}
}

// Dequeue waits up to timeout for the head of the queue. It returns false
// when the timeout elapses or ctx is done first.
func (r *Relay) Dequeue(ctx context.Context, timeout time.Duration) (Record, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case rec := <-r.ch:
		r.metrics.RelayDepth.Add(ctx, -1)
		return rec, true
	case <-timer.C:
		return Record{}, false
	case <-ctx.Done():
		return Record{}, false
	}
}

// Len returns the number of queued records.
func (r *Relay) Len() int { return len(r.ch) }

// Cap returns the relay capacity.
func (r *Relay) Cap() int { return cap(r.ch) }

// Dropped returns the number of records lost to overflow so far.
func (r *Relay) Dropped() uint64 { return r.dropped.Load() }

// Policy returns the overflow policy in effect.
func (r *Relay) Policy() OverflowPolicy { return r.policy }

func (r *Relay) drop(ctx context.Context) {
	r.dropped.Add(1)
	r.metrics.RecordRelayDrop(ctx, string(r.policy))
}
