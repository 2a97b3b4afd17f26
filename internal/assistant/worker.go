package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/pipeline"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
)

// State is the worker's position in its loop.
type State int32

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Broadcaster delivers a spoken response to every connected client.
// Per-client failures are the broadcaster's concern; a returned error means
// the response could not be sent at all.
type Broadcaster interface {
	Broadcast(ctx context.Context, response string) error
}

// BroadcasterFunc adapts a function to [Broadcaster].
type BroadcasterFunc func(ctx context.Context, response string) error

// Broadcast calls f(ctx, response).
func (f BroadcasterFunc) Broadcast(ctx context.Context, response string) error {
	return f(ctx, response)
}

// TaskSink receives tasks the speaker noted to themselves.
type TaskSink interface {
	Task(ctx context.Context, rec Record, task string) error
}

// TaskSinkFunc adapts a function to [TaskSink].
type TaskSinkFunc func(ctx context.Context, rec Record, task string) error

// Task calls f(ctx, rec, task).
func (f TaskSinkFunc) Task(ctx context.Context, rec Record, task string) error {
	return f(ctx, rec, task)
}

// LogTasks is a [TaskSink] that writes each task to the structured log.
var LogTasks TaskSink = TaskSinkFunc(func(ctx context.Context, rec Record, task string) error {
	observe.Logger(ctx).Info("task noted",
		"task", task,
		"client_id", rec.ClientID,
		"transcript", rec.Text,
	)
	return nil
})

// WorkerConfig configures a [Worker]. Relay, LLM, Prompt and Broadcaster are
// required.
type WorkerConfig struct {
	Relay       *Relay
	Window      *ContextWindow
	LLM         llm.Provider
	Prompt      *PromptBuilder
	Broadcaster Broadcaster

	// Tasks defaults to [LogTasks].
	Tasks TaskSink

	// PollInterval bounds each wait on the relay. Default 1s.
	PollInterval time.Duration

	// ErrorBackoff is the pause after a failed dispatch. Default 1s.
	ErrorBackoff time.Duration

	// LLMTimeout bounds one completion. Default 30s.
	LLMTimeout time.Duration

	// ProviderName labels LLM metrics. Default "llm".
	ProviderName string

	Metrics *observe.Metrics
}

// Worker is the single consumer of the relay. It runs until its context is
// cancelled; no dispatch failure stops it.
type Worker struct {
	relay       *Relay
	window      *ContextWindow
	llm         llm.Provider
	prompt      *PromptBuilder
	broadcaster Broadcaster
	tasks       TaskSink
	poll        time.Duration
	backoff     time.Duration
	llmTimeout  time.Duration
	provider    string
	metrics     *observe.Metrics

	state     atomic.Int32
	heartbeat atomic.Int64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker validates cfg and returns an idle Worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	switch {
	case cfg.Relay == nil:
		return nil, errors.New("assistant: worker requires a relay")
	case cfg.LLM == nil:
		return nil, errors.New("assistant: worker requires an LLM provider")
	case cfg.Prompt == nil:
		return nil, errors.New("assistant: worker requires a prompt builder")
	case cfg.Broadcaster == nil:
		return nil, errors.New("assistant: worker requires a broadcaster")
	}
	if cfg.Window == nil {
		cfg.Window = NewContextWindow(DefaultContextLines)
	}
	if cfg.Tasks == nil {
		cfg.Tasks = LogTasks
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "llm"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Worker{
		relay:       cfg.Relay,
		window:      cfg.Window,
		llm:         cfg.LLM,
		prompt:      cfg.Prompt,
		broadcaster: cfg.Broadcaster,
		tasks:       cfg.Tasks,
		poll:        cfg.PollInterval,
		backoff:     cfg.ErrorBackoff,
		llmTimeout:  cfg.LLMTimeout,
		provider:    cfg.ProviderName,
		metrics:     cfg.Metrics,
	}, nil
}

// Run drains the relay until ctx is cancelled. It always returns nil; the
// error result lets it run under an errgroup.
func (w *Worker) Run(ctx context.Context) error {
	slog.Info("assistant worker started", "poll_interval", w.poll, "llm_timeout", w.llmTimeout)
	defer slog.Info("assistant worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load(),
	)

	for {
		w.beat()
		if ctx.Err() != nil {
			return nil
		}
		rec, ok := w.relay.Dequeue(ctx, w.poll)
		if !ok {
			continue
		}

		err := w.Dispatch(ctx, rec)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}
		w.failed.Add(1)
		observe.Logger(ctx).Warn("assistant dispatch failed, transcript dropped",
			"client_id", rec.ClientID,
			"seq", rec.Seq,
			"backoff", w.backoff,
			"err", err,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(w.backoff):
		}
	}
}

// Dispatch runs one transcript through the LLM and acts on the output.
// Blank transcripts are skipped. The transcript is appended to the context
// window before the LLM is called, so it is remembered even if the call
// fails.
func (w *Worker) Dispatch(ctx context.Context, rec Record) error {
	text := strings.TrimSpace(rec.Text)
	if text == "" {
		return nil
	}

	w.state.Store(int32(StateDispatching))
	defer w.state.Store(int32(StateIdle))

	ctx, span := observe.StartSpan(ctx, "assistant.dispatch",
		trace.WithAttributes(
			attribute.String("client.id", rec.ClientID),
			attribute.Int64("segment.seq", int64(rec.Seq)),
		),
	)

	history := w.window.Snapshot()
	w.window.Append(text)
	req := w.prompt.Build(history, text)

	llmCtx, cancel := context.WithTimeout(ctx, w.llmTimeout)
	start := time.Now()
	resp, err := w.llm.Complete(llmCtx, req)
	cancel()
	if err == nil && resp == nil {
		err = errors.New("empty completion")
	}
	w.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		w.metrics.RecordProviderRequest(ctx, w.provider, pipeline.CapabilityLLM, "error")
		w.metrics.RecordProviderError(ctx, w.provider, pipeline.CapabilityLLM)
		err = &pipeline.CapabilityError{Capability: pipeline.CapabilityLLM, Seq: rec.Seq, Err: err}
		observe.EndSpan(span, err)
		return err
	}
	w.metrics.RecordProviderRequest(ctx, w.provider, pipeline.CapabilityLLM, "ok")
	w.processed.Add(1)

	out, err := ParseOutput(resp.Content)
	if err != nil {
		if out.Kind() == KindNone {
			observe.EndSpan(span, err)
			return err
		}
		observe.Logger(ctx).Warn("assistant output violates protocol", "err", err)
	}

	kind := out.Kind()
	w.metrics.RecordAssistantOutput(ctx, kind)
	span.SetAttributes(attribute.String("assistant.output", kind))

	switch kind {
	case KindResponse:
		if err := w.broadcaster.Broadcast(ctx, out.Response); err != nil {
			observe.Logger(ctx).Warn("broadcast failed", "err", err)
		}
	case KindTask:
		if err := w.tasks.Task(ctx, rec, out.Task); err != nil {
			observe.Logger(ctx).Warn("task sink failed", "task", out.Task, "err", err)
		}
	}
	observe.EndSpan(span, nil)
	return nil
}

// SetPersona swaps the system prompt for subsequent dispatches.
func (w *Worker) SetPersona(persona string) { w.prompt.SetPersona(persona) }

// State returns the worker's current state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Heartbeat returns when the loop last came around. Zero until Run starts.
func (w *Worker) Heartbeat() time.Time {
	ns := w.heartbeat.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Processed returns the number of completed LLM calls.
func (w *Worker) Processed() uint64 { return w.processed.Load() }

// Failed returns the number of dropped transcripts.
func (w *Worker) Failed() uint64 { return w.failed.Load() }

// Window returns the worker's context window.
func (w *Worker) Window() *ContextWindow { return w.window }

func (w *Worker) beat() { w.heartbeat.Store(time.Now().UnixNano()) }
