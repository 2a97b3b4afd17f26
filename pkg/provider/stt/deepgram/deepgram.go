// Package deepgram provides a Deepgram-backed STT transcriber using the
// Deepgram streaming WebSocket API.
//
// Each Transcribe call opens a short-lived stream: the segment is written as
// binary frames, a CloseStream control message asks Deepgram to flush, and
// all final results received until the server closes the socket are joined
// into one transcript.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/coder/websocket"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// writeChunkSize is ~250ms of 16 kHz mono PCM.
	writeChunkSize = 8000
)

var _ stt.Transcriber = (*Transcriber)(nil)

// Option is a functional option for configuring the Deepgram Transcriber.
type Option func(*Transcriber)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage sets the default BCP-47 language code (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(t *Transcriber) { t.language = language }
}

// WithKeywords boosts recognition of the given words, e.g. the assistant's
// name. Each entry is sent as a "keywords" query parameter in Deepgram's
// word:boost format.
func WithKeywords(words ...string) Option {
	return func(t *Transcriber) { t.keywords = append(t.keywords, words...) }
}

// WithEndpoint overrides the streaming endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(t *Transcriber) { t.endpoint = endpoint }
}

// Transcriber implements stt.Transcriber backed by the Deepgram streaming API.
type Transcriber struct {
	apiKey   string
	endpoint string
	model    string
	language string
	keywords []string
}

// New creates a new Deepgram Transcriber. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Transcriber, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	t := &Transcriber{
		apiKey:   apiKey,
		endpoint: deepgramEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Transcribe streams req.PCM to Deepgram and returns the joined final results.
func (t *Transcriber) Transcribe(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if len(req.PCM) == 0 {
		return stt.Transcript{}, nil
	}
	f := req.Format
	if f.SampleRate == 0 {
		f = audio.DefaultFormat
	}

	wsURL, err := t.buildURL(f, req.Language)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+t.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: dial: %w", err)
	}
	defer conn.CloseNow()

	for off := 0; off < len(req.PCM); off += writeChunkSize {
		end := min(off+writeChunkSize, len(req.PCM))
		if err := conn.Write(ctx, websocket.MessageBinary, req.PCM[off:end]); err != nil {
			return stt.Transcript{}, fmt.Errorf("deepgram: write audio: %w", err)
		}
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: close stream: %w", err)
	}

	var (
		parts []string
		conf  float64
		n     int
	)
read:
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", ctx.Err())
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, io.EOF) {
				break
			}
			return stt.Transcript{}, fmt.Errorf("deepgram: read: %w", err)
		}
		res, ok := parseResult(msg)
		switch {
		case !ok:
			continue
		case res.kind == "Metadata":
			// Sent last, after every result has been flushed.
			break read
		case res.kind != "Results" || !res.isFinal:
			continue
		}
		if text := strings.TrimSpace(res.text); text != "" {
			parts = append(parts, text)
			conf += res.confidence
			n++
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "transcription complete")

	tr := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Language: t.languageFor(req.Language),
		Duration: f.Duration(req.PCM),
	}
	if n > 0 {
		tr.Confidence = conf / float64(n)
	}
	return tr, nil
}

func (t *Transcriber) languageFor(lang string) string {
	if lang != "" {
		return lang
	}
	return t.language
}

// buildURL constructs the streaming endpoint URL for one request.
func (t *Transcriber) buildURL(f audio.Format, lang string) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("model", t.model)
	q.Set("language", t.languageFor(lang))
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(f.SampleRate))
	q.Set("channels", strconv.Itoa(max(f.Channels, 1)))
	for _, kw := range t.keywords {
		q.Add("keywords", kw+":2")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type     string  `json:"type"`
	IsFinal  bool    `json:"is_final"`
	Duration float64 `json:"duration"`
	Channel  struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

type result struct {
	kind       string
	text       string
	confidence float64
	isFinal    bool
	duration   time.Duration
}

// parseResult parses a raw Deepgram message. Returns false for undecodable
// messages and for Results events without alternatives.
func parseResult(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{kind: resp.Type}, true
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}
	alt := resp.Channel.Alternatives[0]
	return result{
		kind:       resp.Type,
		text:       alt.Transcript,
		confidence: alt.Confidence,
		isFinal:    resp.IsFinal,
		duration:   time.Duration(resp.Duration * float64(time.Second)),
	}, true
}
