// Package config provides the configuration schema, loader, provider registry,
// and hot-reload watcher for the jarvis assistant server.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/jarvis/pkg/audio"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l to an [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SegmentMode selects how inbound audio messages are cut into segments.
type SegmentMode string

const (
	// SegmentMessage treats every inbound message as one segment.
	SegmentMessage SegmentMode = "message"

	// SegmentThreshold accumulates messages until pipeline.segment_bytes is
	// reached.
	SegmentThreshold SegmentMode = "threshold"
)

// IsValid reports whether m is a recognised segment mode.
func (m SegmentMode) IsValid() bool {
	return m == SegmentMessage || m == SegmentThreshold
}

// OverflowPolicy decides what the transcript relay does when it is full.
type OverflowPolicy string

const (
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	OverflowRejectNew  OverflowPolicy = "reject_new"
)

// IsValid reports whether p is a recognised overflow policy.
func (p OverflowPolicy) IsValid() bool {
	return p == OverflowDropOldest || p == OverflowRejectNew
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Audio      AudioConfig      `yaml:"audio"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on. Default ":8765".
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// WSPath is the HTTP path that accepts WebSocket upgrades. Default "/".
	WSPath string `yaml:"ws_path"`

	// WriteTimeout bounds a single outbound message write. Default 5s.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ReadLimit caps the size of one inbound message in bytes. Default 4 MiB.
	ReadLimit int64 `yaml:"read_limit"`

	// AllowedOrigins lists origin host patterns accepted for browser clients.
	// Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// TLS enables HTTPS/WSS when set.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the implementation for each capability. Each entry
// names a factory registered in the [Registry].
type ProvidersConfig struct {
	LLM          ProviderEntry   `yaml:"llm"`
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
	STT          ProviderEntry   `yaml:"stt"`
	STTFallbacks []ProviderEntry `yaml:"stt_fallbacks"`
	VAD          ProviderEntry   `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "gemini", "whisper").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any. Use
	// ${ENV_VAR} references rather than literal keys.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gemini-2.5-flash").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// ResilienceConfig tunes the circuit breakers placed in front of every
// provider that has fallbacks configured.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// AudioConfig describes the PCM format clients send.
type AudioConfig struct {
	SampleRate int `yaml:"sample_rate"`
	Channels   int `yaml:"channels"`
}

// Format returns the configured format as an [audio.Format].
func (a AudioConfig) Format() audio.Format {
	return audio.Format{SampleRate: a.SampleRate, Channels: a.Channels}
}

// PipelineConfig configures segmentation and transcription.
type PipelineConfig struct {
	SegmentMode SegmentMode `yaml:"segment_mode"`

	// SegmentBytes is the segment size used in threshold mode. Default
	// 32000 (one second of 16 kHz mono PCM16).
	SegmentBytes int `yaml:"segment_bytes"`

	// MaxConcurrentTranscriptions bounds in-flight STT calls across all
	// connections. Default 4.
	MaxConcurrentTranscriptions int `yaml:"max_concurrent_transcriptions"`

	// Language overrides the STT provider's language for every request.
	// Empty leaves it to the provider's "language" option or its own default.
	Language string `yaml:"language"`

	// PromptHint biases the recogniser towards expected vocabulary. Defaults
	// to a sentence naming the assistant.
	PromptHint string `yaml:"prompt_hint"`
}

// AssistantConfig configures the background assistant worker.
type AssistantConfig struct {
	// Name is the wake name the assistant answers to. Default "JARVIS".
	Name string `yaml:"name"`

	// Persona replaces the built-in system prompt when set. Hot-reloadable.
	Persona string `yaml:"persona"`

	// ContextLines is the number of recent transcripts kept. Default 10.
	ContextLines int `yaml:"context_lines"`

	// RelayCapacity bounds the transcript queue. Default 64.
	RelayCapacity int `yaml:"relay_capacity"`

	// OverflowPolicy applies when the queue is full. Default drop_oldest.
	OverflowPolicy OverflowPolicy `yaml:"overflow_policy"`

	// PollInterval is the bounded wait for the next transcript. Default 1s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// ErrorBackoff is the pause after a failed LLM call. Default 1s.
	ErrorBackoff time.Duration `yaml:"error_backoff"`

	// LLMTimeout bounds a single completion. Default 30s.
	LLMTimeout time.Duration `yaml:"llm_timeout"`

	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// WakeThreshold is the Jaro-Winkler similarity above which a word counts
	// as the wake name. Default 0.85.
	WakeThreshold float64 `yaml:"wake_threshold"`
}

// TelemetryConfig configures metrics and health endpoints.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
	MetricsPath string `yaml:"metrics_path"`
}
