// Package app wires the jarvis subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds the pipeline, relay,
// assistant worker, hub and HTTP server from the config; Run binds the
// listener and runs the server and worker until the context ends; Shutdown
// tears everything down in order.
//
// Tests inject doubles through [Providers] and the functional options
// (WithListener, WithMetrics, WithTaskSink, ...).
package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/assistant"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/hub"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/pipeline"
	"github.com/MrWong99/jarvis/internal/server"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
)

// heartbeatSlack is added to the worker's worst-case iteration time before
// the readiness check reports it as stalled.
const heartbeatSlack = 5 * time.Second

// Providers holds one capability per slot, populated by main.go via the
// config registry. All three are required.
type Providers struct {
	LLM llm.Provider
	STT stt.Transcriber
	VAD vad.Detector

	// Names label metrics and logs. Empty names fall back to the capability.
	LLMName string
	STTName string
	VADName string

	// Checks are extra readiness checks, e.g. circuit breaker state of
	// failover groups.
	Checks []health.Checker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar
	tasks          assistant.TaskSink
	listener       net.Listener

	hub      *hub.Hub
	relay    *assistant.Relay
	worker   *assistant.Worker
	pipeline *pipeline.Pipeline
	health   *health.Handler
	server   *server.Server

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics injects the instrument set instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at telemetry.metrics_path.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets ApplyConfig change the log level at runtime.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// WithTaskSink replaces the default task logger.
func WithTaskSink(ts assistant.TaskSink) Option {
	return func(a *App) { a.tasks = ts }
}

// WithListener makes Run serve on ln instead of binding server.listen_addr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithCloser registers fn to run during Shutdown, after the server and
// worker have stopped.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// New creates an App by wiring all subsystems together. It does not bind
// the listen address; Run does.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.LLM == nil || providers.STT == nil || providers.VAD == nil {
		return nil, errors.New("app: llm, stt and vad providers are required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.tasks == nil {
		a.tasks = assistant.LogTasks
	}

	a.hub = hub.New(a.metrics)

	// ── 1. Relay + worker ────────────────────────────────────────────────
	if err := a.initAssistant(); err != nil {
		return nil, fmt.Errorf("app: init assistant: %w", err)
	}

	// ── 2. Audio pipeline ────────────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}

	// ── 3. Health ────────────────────────────────────────────────────────
	a.initHealth()

	// ── 4. HTTP server ───────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		WSPath:         cfg.Server.WSPath,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReadLimit:      cfg.Server.ReadLimit,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MetricsPath:    cfg.Telemetry.MetricsPath,
		MetricsHandler: a.metricsHandler,
		Health:         a.health,
		Metrics:        a.metrics,
	}, a.hub, a.pipeline)
	if err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	a.server = srv

	slog.Debug("app initialised",
		"llm", nameOr(providers.LLMName, "llm"),
		"stt", nameOr(providers.STTName, "stt"),
		"vad", nameOr(providers.VADName, "vad"),
	)
	return a, nil
}

func (a *App) initAssistant() error {
	ac := a.cfg.Assistant

	relay, err := assistant.NewRelay(ac.RelayCapacity, assistant.OverflowPolicy(ac.OverflowPolicy), a.metrics)
	if err != nil {
		return err
	}
	a.relay = relay

	prompt := assistant.NewPromptBuilder(assistant.PromptConfig{
		Name:        ac.Name,
		Persona:     ac.Persona,
		Temperature: ac.Temperature,
		MaxTokens:   ac.MaxTokens,
		Wake:        assistant.NewWakeMatcher(ac.Name, ac.WakeThreshold),
	})

	a.worker, err = assistant.NewWorker(assistant.WorkerConfig{
		Relay:        relay,
		Window:       assistant.NewContextWindow(ac.ContextLines),
		LLM:          a.providers.LLM,
		Prompt:       prompt,
		Broadcaster:  hubBroadcaster{hub: a.hub},
		Tasks:        a.tasks,
		PollInterval: ac.PollInterval,
		ErrorBackoff: ac.ErrorBackoff,
		LLMTimeout:   ac.LLMTimeout,
		ProviderName: nameOr(a.providers.LLMName, "llm"),
		Metrics:      a.metrics,
	})
	return err
}

func (a *App) initPipeline() error {
	pc := a.cfg.Pipeline

	classifier, err := pipeline.NewClassifier(a.providers.VAD, a.metrics)
	if err != nil {
		return err
	}
	gate, err := pipeline.NewGate(a.providers.STT, a.relay, pipeline.GateConfig{
		Language:      pc.Language,
		Prompt:        pc.PromptHint,
		MaxConcurrent: pc.MaxConcurrentTranscriptions,
		ProviderName:  nameOr(a.providers.STTName, "stt"),
	}, a.metrics)
	if err != nil {
		return err
	}
	a.pipeline, err = pipeline.New(pipeline.SegmenterConfig{
		Mode:         pipeline.Mode(pc.SegmentMode),
		Format:       a.cfg.Audio.Format(),
		SegmentBytes: pc.SegmentBytes,
	}, classifier, gate, a.metrics)
	return err
}

func (a *App) initHealth() {
	ac := a.cfg.Assistant
	maxAge := ac.LLMTimeout + ac.ErrorBackoff + ac.PollInterval + heartbeatSlack

	checks := []health.Checker{
		health.Heartbeat("assistant", a.worker.Heartbeat, maxAge),
		{
			Name: "relay",
			Check: func(context.Context) error {
				if n, c := a.relay.Len(), a.relay.Cap(); n >= c {
					return fmt.Errorf("relay saturated (%d/%d)", n, c)
				}
				return nil
			},
		},
	}
	checks = append(checks, a.providers.Checks...)
	a.health = health.New(checks...)
}

// Run binds the listen address and serves until ctx is cancelled or a
// component fails. A bind failure is returned immediately.
func (a *App) Run(ctx context.Context) error {
	ln, err := a.listen()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.server.Serve(gctx, ln) })
	g.Go(func() error { return a.worker.Run(gctx) })

	slog.Info("jarvis running",
		"addr", ln.Addr().String(),
		"assistant", a.cfg.Assistant.Name,
		"segment_mode", a.cfg.Pipeline.SegmentMode,
	)
	return g.Wait()
}

func (a *App) listen() (net.Listener, error) {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return nil, fmt.Errorf("app: bind %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	if t := a.cfg.Server.TLS; t != nil {
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("app: load tls key pair: %w", err)
		}
		ln = tls.NewListener(ln, &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		})
	}
	return ln, nil
}

// Shutdown stops the server, closes every client and runs the registered
// closers. It respects the context deadline: if ctx expires before all
// closers finish, the remaining ones are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "clients", a.hub.Len(), "queued", a.relay.Len())

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete",
			"processed", a.worker.Processed(),
			"failed", a.worker.Failed(),
			"dropped", a.relay.Dropped(),
		)
	})
	return shutdownErr
}

// ApplyConfig applies the hot-reloadable differences between old and new
// and logs everything that needs a restart. It is the watcher callback.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.PersonaChanged {
		a.worker.SetPersona(d.NewPersona)
		slog.Info("assistant persona updated", "custom", d.NewPersona != "")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// Hub returns the connection registry.
func (a *App) Hub() *hub.Hub { return a.hub }

// Relay returns the transcript relay.
func (a *App) Relay() *assistant.Relay { return a.relay }

// Worker returns the assistant worker.
func (a *App) Worker() *assistant.Worker { return a.worker }

// Health returns the health handler.
func (a *App) Health() *health.Handler { return a.health }

// Handler returns the HTTP handler, for tests and embedding.
func (a *App) Handler() http.Handler { return a.server.Handler() }

// hubBroadcaster adapts the hub to [assistant.Broadcaster].
type hubBroadcaster struct {
	hub *hub.Hub
}

func (b hubBroadcaster) Broadcast(ctx context.Context, response string) error {
	rep := b.hub.Broadcast(ctx, hub.LLM(response))
	observe.Logger(ctx).Info("response broadcast",
		"response", response,
		"recipients", rep.Recipients,
		"delivered", rep.Delivered,
	)
	return nil
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
