// Command jarvis-client streams raw PCM16 audio to a jarvis server and prints
// every message the server sends back.
//
// Usage:
//
//	arecord -f S16_LE -r 16000 -c 1 -t raw | jarvis-client -url ws://localhost:8765/
//	jarvis-client -file meeting.wav -interval 0
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/hub"
)

func main() {
	os.Exit(run())
}

func run() int {
	url := flag.String("url", "ws://localhost:8765/", "server WebSocket URL")
	file := flag.String("file", "-", "audio source, raw PCM16 or WAV; - reads stdin")
	chunk := flag.Int("chunk", 3200, "bytes per binary message")
	interval := flag.Duration("interval", 100*time.Millisecond, "pause between messages; 0 sends as fast as possible")
	linger := flag.Duration("linger", 10*time.Second, "how long to keep listening after the source ends")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if *chunk <= 0 {
		fmt.Fprintln(os.Stderr, "jarvis-client: -chunk must be positive")
		return 2
	}

	src := io.Reader(os.Stdin)
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jarvis-client: %v\n", err)
			return 1
		}
		defer f.Close()
		src = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.Dial(ctx, *url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jarvis-client: dial %s: %v\n", *url, err)
		return 1
	}
	defer conn.CloseNow()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return receive(gctx, conn, os.Stdout) })
	g.Go(func() error {
		if err := stream(gctx, conn, src, *chunk, *interval); err != nil {
			return err
		}
		slog.Info("audio source drained, waiting for replies", "linger", *linger)
		select {
		case <-gctx.Done():
		case <-time.After(*linger):
		}
		return conn.Close(websocket.StatusNormalClosure, "done")
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		fmt.Fprintf(os.Stderr, "jarvis-client: %v\n", err)
		return 1
	}
	return 0
}

// stream copies src to conn in binary messages of at most size bytes.
func stream(ctx context.Context, conn *websocket.Conn, src io.Reader, size int, interval time.Duration) error {
	buf := make([]byte, size)
	var ticker *time.Ticker
	if interval > 0 {
		ticker = time.NewTicker(interval)
		defer ticker.Stop()
	}
	for {
		n, err := io.ReadFull(src, buf)
		if n > 0 {
			if werr := conn.Write(ctx, websocket.MessageBinary, buf[:n]); werr != nil {
				return fmt.Errorf("send audio: %w", werr)
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
	}
}

// receive prints every non-empty message until the connection closes.
func receive(ctx context.Context, conn *websocket.Conn, w io.Writer) error {
	for {
		var msg hub.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return err
		}
		if msg.Data == "" {
			continue
		}
		switch msg.Type {
		case hub.TypeTranscript:
			fmt.Fprintf(w, "[you]    %s\n", msg.Data)
		case hub.TypeLLM:
			fmt.Fprintf(w, "[jarvis] %s\n", msg.Data)
		default:
			fmt.Fprintf(w, "[%s] %s\n", msg.Type, msg.Data)
		}
	}
}
