// Package server exposes the audio WebSocket endpoint together with the
// health and metrics routes.
//
// Each WebSocket connection is registered with the [hub.Hub] before its
// first read and owns one [pipeline.Stream]. Binary messages are audio
// chunks; every completed cycle is answered with a transcript message on the
// same connection. Text messages are ignored.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/hub"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/pipeline"
	"github.com/MrWong99/jarvis/pkg/audio"
)

const (
	defaultReadLimit    = 4 << 20
	readHeaderTimeout   = 10 * time.Second
	shutdownCloseReason = "server shutting down"
)

// Config configures a [Server].
type Config struct {
	// WSPath is the WebSocket endpoint. Default "/".
	WSPath string

	// AllowedOrigins are host patterns accepted in the Origin header in
	// addition to the request's own host.
	AllowedOrigins []string

	// ReadLimit caps one inbound message in bytes. Default 4 MiB.
	ReadLimit int64

	// WriteTimeout bounds each outbound message. Default 5s.
	WriteTimeout time.Duration

	// MetricsPath and MetricsHandler mount the metrics exposition. Both must
	// be set for the route to exist.
	MetricsPath    string
	MetricsHandler http.Handler

	// Health, if set, serves /healthz and /readyz.
	Health *health.Handler

	Metrics *observe.Metrics
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	hub      *hub.Hub
	pipeline *pipeline.Pipeline
	handler  http.Handler
	srv      *http.Server

	mu      sync.Mutex
	closing bool
	conns   sync.WaitGroup
}

// New returns a Server that registers clients with h and runs their audio
// through p.
func New(cfg Config, h *hub.Hub, p *pipeline.Pipeline) (*Server, error) {
	if h == nil || p == nil {
		return nil, errors.New("server: hub and pipeline are required")
	}
	if cfg.WSPath == "" {
		cfg.WSPath = "/"
	}
	if !strings.HasPrefix(cfg.WSPath, "/") {
		return nil, fmt.Errorf("server: ws path %q must start with /", cfg.WSPath)
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = defaultReadLimit
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{cfg: cfg, hub: h, pipeline: p}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+exactPattern(cfg.WSPath), s.handleWS)
	if cfg.Health != nil {
		cfg.Health.Register(mux)
	}
	if cfg.MetricsPath != "" && cfg.MetricsHandler != nil {
		mux.Handle("GET "+cfg.MetricsPath, cfg.MetricsHandler)
	}
	s.handler = observe.Middleware(cfg.Metrics)(mux)
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s, nil
}

// exactPattern makes a trailing-slash path match only itself.
func exactPattern(path string) string {
	if strings.HasSuffix(path, "/") {
		return path + "{$}"
	}
	return path
}

// Handler returns the root handler, including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on ln until ctx is cancelled or Shutdown is
// called. It returns nil on a clean stop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	slog.Info("server listening", "addr", ln.Addr().String(), "ws_path", s.cfg.WSPath)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops accepting connections, closes every WebSocket client and
// waits for their handlers to return or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	err := s.srv.Shutdown(ctx)
	s.hub.CloseAll(shutdownCloseReason)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("server: waiting for connections: %w", ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	log := observe.Logger(r.Context())

	// Hijacked connections are invisible to http.Server.Shutdown, so the
	// handler joins conns before upgrading and Shutdown flips closing first.
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, shutdownCloseReason, http.StatusServiceUnavailable)
		return
	}
	s.conns.Add(1)
	s.mu.Unlock()
	defer s.conns.Done()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		log.Warn("websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(s.cfg.ReadLimit)

	client := hub.NewWSClient(conn, r.RemoteAddr, s.cfg.WriteTimeout)
	if !s.register(client) {
		_ = conn.Close(websocket.StatusGoingAway, shutdownCloseReason)
		return
	}
	stream := s.pipeline.NewStream(client.ID())
	log = log.With("client_id", client.ID())
	log.Info("client connected", "remote", r.RemoteAddr, "clients", s.hub.Len())

	defer func() {
		stream.Close()
		s.hub.Unregister(client)
		_ = client.Close("")
		log.Info("client disconnected", "clients", s.hub.Len())
	}()

	s.readLoop(r.Context(), log, client, stream)
}

// register adds client to the hub unless Shutdown has started. Holding mu
// orders it against the CloseAll sweep.
func (s *Server) register(client *hub.WSClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.hub.Register(client)
	return true
}

func (s *Server) readLoop(ctx context.Context, log *slog.Logger, client *hub.WSClient, stream *pipeline.Stream) {
	conn := client.Conn()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				log.Debug("connection closed by peer")
			default:
				log.Debug("read failed", "err", err)
			}
			return
		}
		if typ != websocket.MessageBinary {
			log.Debug("ignoring non-binary message", "bytes", len(data))
			continue
		}

		res, err := stream.Push(ctx, data)
		switch {
		case audio.IsDecodeError(err):
			log.Warn("undecodable audio, cycle skipped", "err", err)
			continue
		case err != nil:
			log.Warn("cycle skipped", "err", err)
			continue
		case res == nil:
			continue
		}

		if err := s.hub.Send(ctx, client, hub.Transcript(res.Text)); err != nil {
			log.Warn("transcript reply failed", "err", err)
			return
		}
		if res.Speech {
			log.Info("transcribed", "seq", res.Seq, "text", res.Text, "relayed", res.Relayed)
		}
	}
}
