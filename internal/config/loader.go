package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in provider names per kind. [Validate]
// warns about names not listed here; they may belong to a factory registered
// by an embedding program.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native", "openai", "deepgram"},
	"vad": {"energy"},
}

// envRef matches ${NAME} references. Bare $NAME is left alone so persona
// prompts may contain dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces every ${NAME} in data with the value of the environment
// variable NAME. Unset variables expand to the empty string and are logged.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(envRef.FindSubmatch(m)[1])
		v, ok := os.LookupEnv(name)
		if !ok {
			slog.Warn("config references unset environment variable", "name", name)
		}
		return []byte(v)
	})
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r
// (rejecting unknown fields), applies defaults, and validates the result.
// An empty document yields the all-defaults config.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It expects
// defaults to have been applied and returns a joined error listing every
// problem found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	s := cfg.Server
	if !s.LogLevel.IsValid() {
		add("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel)
	}
	if !strings.HasPrefix(s.WSPath, "/") {
		add("server.ws_path %q must start with /", s.WSPath)
	}
	if s.WriteTimeout < 0 {
		add("server.write_timeout must not be negative")
	}
	if s.ReadLimit < 0 {
		add("server.read_limit must not be negative")
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		add("server.tls requires both cert_file and key_file")
	}

	validateEntry(&errs, "providers.llm", "llm", cfg.Providers.LLM)
	for i, e := range cfg.Providers.LLMFallbacks {
		validateEntry(&errs, fmt.Sprintf("providers.llm_fallbacks[%d]", i), "llm", e)
	}
	validateEntry(&errs, "providers.stt", "stt", cfg.Providers.STT)
	for i, e := range cfg.Providers.STTFallbacks {
		validateEntry(&errs, fmt.Sprintf("providers.stt_fallbacks[%d]", i), "stt", e)
	}
	validateEntry(&errs, "providers.vad", "vad", cfg.Providers.VAD)

	r := cfg.Resilience
	if r.MaxFailures < 0 || r.HalfOpenMax < 0 || r.ResetTimeout < 0 {
		add("resilience values must not be negative")
	}

	if err := cfg.Audio.Format().Validate(); err != nil {
		add("audio: %v", err)
	}

	p := cfg.Pipeline
	if !p.SegmentMode.IsValid() {
		add("pipeline.segment_mode %q is invalid; valid values: message, threshold", p.SegmentMode)
	}
	if frame := cfg.Audio.Format().FrameSize(); p.SegmentBytes <= 0 || (frame > 0 && p.SegmentBytes%frame != 0) {
		add("pipeline.segment_bytes %d must be a positive multiple of the frame size", p.SegmentBytes)
	}
	if p.MaxConcurrentTranscriptions <= 0 {
		add("pipeline.max_concurrent_transcriptions must be positive")
	}

	a := cfg.Assistant
	if strings.TrimSpace(a.Name) == "" {
		add("assistant.name must not be blank")
	}
	if a.ContextLines <= 0 {
		add("assistant.context_lines must be positive")
	}
	if a.RelayCapacity <= 0 {
		add("assistant.relay_capacity must be positive")
	}
	if !a.OverflowPolicy.IsValid() {
		add("assistant.overflow_policy %q is invalid; valid values: drop_oldest, reject_new", a.OverflowPolicy)
	}
	if a.PollInterval <= 0 || a.ErrorBackoff < 0 || a.LLMTimeout <= 0 {
		add("assistant durations must be positive")
	}
	if a.WakeThreshold <= 0 || a.WakeThreshold > 1 {
		add("assistant.wake_threshold %.2f is out of range (0, 1]", a.WakeThreshold)
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		add("assistant.temperature %.2f is out of range [0, 2]", a.Temperature)
	}

	if !strings.HasPrefix(cfg.Telemetry.MetricsPath, "/") {
		add("telemetry.metrics_path %q must start with /", cfg.Telemetry.MetricsPath)
	}
	if cfg.Telemetry.MetricsPath == s.WSPath {
		add("telemetry.metrics_path and server.ws_path must differ")
	}

	return errors.Join(errs...)
}

func validateEntry(errs *[]error, field, kind string, e ProviderEntry) {
	if e.Name == "" {
		*errs = append(*errs, fmt.Errorf("%s.name is required", field))
		return
	}
	if e.BaseURL != "" {
		if u, err := url.Parse(e.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			*errs = append(*errs, fmt.Errorf("%s.base_url %q is not an absolute URL", field, e.BaseURL))
		}
	}
	if known := ValidProviderNames[kind]; !slices.Contains(known, e.Name) {
		slog.Warn("unknown provider name, may be a typo or third-party provider",
			"field", field,
			"name", e.Name,
			"known", known,
		)
	}
}
