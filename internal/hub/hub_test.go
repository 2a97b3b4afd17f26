package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

type fakeClient struct {
	id      string
	sendErr error
	delay   time.Duration

	mu     sync.Mutex
	got    []Message
	closes atomic.Int32
}

func (c *fakeClient) ID() string { return c.id }

func (c *fakeClient) Send(ctx context.Context, msg Message) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.mu.Lock()
	c.got = append(c.got, msg)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) Close(string) error {
	c.closes.Add(1)
	return nil
}

func (c *fakeClient) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.got...)
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := New(testMetrics(t))
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}

	h.Register(a)
	h.Register(b)
	h.Register(a)
	if h.Len() != 2 {
		t.Fatalf("Len = %d, want 2", h.Len())
	}

	snap := h.Snapshot()
	if len(snap) != 2 || snap[0].ID() != "a" || snap[1].ID() != "b" {
		t.Errorf("Snapshot = %v", snap)
	}

	if !h.Unregister(a) {
		t.Error("Unregister(a) = false, want true")
	}
	if h.Unregister(a) {
		t.Error("second Unregister(a) = true, want false")
	}
	if h.Len() != 1 {
		t.Errorf("Len = %d, want 1", h.Len())
	}
}

func TestHub_BroadcastIsolatesFailures(t *testing.T) {
	h := New(testMetrics(t))
	var clients []*fakeClient
	for i := range 5 {
		c := &fakeClient{id: fmt.Sprintf("c%d", i)}
		if i == 2 {
			c.sendErr = errors.New("broken pipe")
		}
		clients = append(clients, c)
		h.Register(c)
	}

	rep := h.Broadcast(context.Background(), LLM("It's 3pm."))

	if rep.Recipients != 5 || rep.Delivered != 4 || len(rep.Failed) != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Failed[0].ClientID != "c2" {
		t.Errorf("failed client = %s, want c2", rep.Failed[0].ClientID)
	}
	for i, c := range clients {
		msgs := c.Messages()
		if i == 2 {
			if len(msgs) != 0 {
				t.Errorf("failing client received %v", msgs)
			}
			if c.closes.Load() != 1 {
				t.Errorf("failing client closed %d times, want 1", c.closes.Load())
			}
			continue
		}
		if len(msgs) != 1 || msgs[0] != (Message{Type: TypeLLM, Data: "It's 3pm."}) {
			t.Errorf("client %s got %v", c.id, msgs)
		}
		if c.closes.Load() != 0 {
			t.Errorf("healthy client %s was closed", c.id)
		}
	}
	if h.Len() != 4 {
		t.Errorf("Len after broadcast = %d, want 4", h.Len())
	}
}

func TestHub_BroadcastIsConcurrent(t *testing.T) {
	h := New(testMetrics(t))
	for i := range 10 {
		h.Register(&fakeClient{id: fmt.Sprint(i), delay: 50 * time.Millisecond})
	}

	start := time.Now()
	rep := h.Broadcast(context.Background(), LLM("hi"))
	if rep.Delivered != 10 {
		t.Fatalf("Delivered = %d, want 10", rep.Delivered)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("broadcast took %v; sends are not concurrent", elapsed)
	}
}

func TestHub_BroadcastEmpty(t *testing.T) {
	h := New(testMetrics(t))
	rep := h.Broadcast(context.Background(), LLM("anyone?"))
	if rep.Recipients != 0 || rep.Delivered != 0 || len(rep.Failed) != 0 {
		t.Errorf("report = %+v", rep)
	}
}

func TestHub_SendWrapsDeliveryError(t *testing.T) {
	h := New(testMetrics(t))
	boom := errors.New("reset by peer")
	c := &fakeClient{id: "x", sendErr: boom}
	h.Register(c)

	err := h.Send(context.Background(), c, Transcript(""))
	if !IsDeliveryError(err) || !errors.Is(err, boom) {
		t.Fatalf("err = %v, want DeliveryError wrapping %v", err, boom)
	}
	if h.Len() != 1 {
		t.Error("Send must not unregister the client")
	}
}

func TestHub_CloseAll(t *testing.T) {
	h := New(testMetrics(t))
	a := &fakeClient{id: "a"}
	b := &fakeClient{id: "b"}
	h.Register(a)
	h.Register(b)

	h.CloseAll("shutdown")
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
	if a.closes.Load() != 1 || b.closes.Load() != 1 {
		t.Error("not every client was closed")
	}
}

func TestHub_ConcurrentRegistration(t *testing.T) {
	h := New(testMetrics(t))
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &fakeClient{id: fmt.Sprint(i)}
			h.Register(c)
			h.Broadcast(context.Background(), LLM("x"))
			h.Unregister(c)
		}()
	}
	wg.Wait()
	if h.Len() != 0 {
		t.Errorf("Len = %d, want 0", h.Len())
	}
}
