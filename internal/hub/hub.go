package hub

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/observe"
)

// Report summarises one broadcast.
type Report struct {
	Recipients int
	Delivered  int

	// Failed lists the clients that could not be reached. They have been
	// unregistered and closed.
	Failed []*DeliveryError
}

// Hub is the registry of connected clients. All methods are safe for
// concurrent use.
type Hub struct {
	metrics *observe.Metrics

	mu      sync.RWMutex
	clients map[string]Client
}

// New returns an empty Hub. A nil m selects [observe.DefaultMetrics].
func New(m *observe.Metrics) *Hub {
	if m == nil {
		m = observe.DefaultMetrics()
	}
	return &Hub{metrics: m, clients: make(map[string]Client)}
}

// Register adds c. Registering the same client twice is a no-op.
func (h *Hub) Register(c Client) {
	h.mu.Lock()
	_, exists := h.clients[c.ID()]
	h.clients[c.ID()] = c
	h.mu.Unlock()
	if !exists {
		h.metrics.ActiveConnections.Add(context.Background(), 1)
		slog.Debug("client registered", "client_id", c.ID())
	}
}

// Unregister removes c and reports whether it was registered.
func (h *Hub) Unregister(c Client) bool {
	h.mu.Lock()
	_, exists := h.clients[c.ID()]
	delete(h.clients, c.ID())
	h.mu.Unlock()
	if exists {
		h.metrics.ActiveConnections.Add(context.Background(), -1)
		slog.Debug("client unregistered", "client_id", c.ID())
	}
	return exists
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Snapshot returns the registered clients ordered by ID.
func (h *Hub) Snapshot() []Client {
	h.mu.RLock()
	out := make([]Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Send delivers msg to a single client. A failure is returned as a
// [*DeliveryError]; the client stays registered.
func (h *Hub) Send(ctx context.Context, c Client, msg Message) error {
	if err := c.Send(ctx, msg); err != nil {
		return &DeliveryError{ClientID: c.ID(), Err: err}
	}
	return nil
}

// Broadcast sends msg to every client registered at the time of the call.
// Sends run concurrently and are awaited independently. Clients whose send
// fails are unregistered and closed after the fan-out.
func (h *Hub) Broadcast(ctx context.Context, msg Message) Report {
	ctx, span := observe.StartSpan(ctx, "hub.broadcast",
		trace.WithAttributes(attribute.String("message.type", msg.Type)),
	)
	start := time.Now()

	clients := h.Snapshot()
	rep := Report{Recipients: len(clients)}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		dead []Client
	)
	for _, c := range clients {
		g.Go(func() error {
			err := h.Send(ctx, c, msg)
			h.metrics.RecordBroadcastSend(ctx, err == nil)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.Failed = append(rep.Failed, err.(*DeliveryError))
				dead = append(dead, c)
				return nil
			}
			rep.Delivered++
			return nil
		})
	}
	_ = g.Wait()

	for i, c := range dead {
		observe.Logger(ctx).Warn("broadcast delivery failed, dropping client",
			"client_id", c.ID(),
			"err", rep.Failed[i].Err,
		)
		h.Unregister(c)
		_ = c.Close("delivery failed")
	}

	h.metrics.BroadcastDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("broadcast.recipients", rep.Recipients),
		attribute.Int("broadcast.failed", len(rep.Failed)),
	)
	observe.EndSpan(span, nil)
	return rep
}

// CloseAll closes and unregisters every client.
func (h *Hub) CloseAll(reason string) {
	for _, c := range h.Snapshot() {
		h.Unregister(c)
		_ = c.Close(reason)
	}
}
