package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/jarvis/internal/app"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/llm/anyllm"
	oaillm "github.com/MrWong99/jarvis/pkg/provider/llm/openai"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/provider/stt/deepgram"
	oaistt "github.com/MrWong99/jarvis/pkg/provider/stt/openai"
	"github.com/MrWong99/jarvis/pkg/provider/stt/whisper"
	"github.com/MrWong99/jarvis/pkg/provider/vad"
	"github.com/MrWong99/jarvis/pkg/provider/vad/energy"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai talks to the Chat Completions API directly so base_url can point
	// at any compatible server (vLLM, LM Studio, ...).
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		if d, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaillm.WithTimeout(d))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining hosted backends share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, oaistt.WithLanguage(lang))
		}
		if d, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if d > 0 {
			opts = append(opts, oaistt.WithTimeout(d))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if kw := optStrings(entry.Options, "keywords"); len(kw) > 0 {
			opts = append(opts, deepgram.WithKeywords(kw...))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", newEnergyDetector)

	for _, kind := range []string{"llm", "stt", "vad"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// newEnergyDetector builds the RMS detector from its options block.
// Durations are Go duration strings; thresholds are RMS levels in (0, 1].
func newEnergyDetector(entry config.ProviderEntry) (vad.Detector, error) {
	var opts []energy.Option

	speech, hasSpeech, err := optFloat(entry.Options, "speech_threshold")
	if err != nil {
		return nil, err
	}
	silence, hasSilence, err := optFloat(entry.Options, "silence_threshold")
	if err != nil {
		return nil, err
	}
	switch {
	case hasSpeech && hasSilence:
		opts = append(opts, energy.WithThresholds(speech, silence))
	case hasSpeech || hasSilence:
		return nil, errors.New("energy: speech_threshold and silence_threshold must be set together")
	}

	durations := []struct {
		key string
		opt func(time.Duration) energy.Option
	}{
		{"frame_size", energy.WithFrameSize},
		{"min_speech", energy.WithMinSpeech},
		{"min_silence", energy.WithMinSilence},
		{"speech_pad", energy.WithSpeechPad},
	}
	for _, d := range durations {
		v, err := optDuration(entry.Options, d.key)
		if err != nil {
			return nil, err
		}
		if v > 0 {
			opts = append(opts, d.opt(v))
		}
	}
	return energy.New(opts...)
}

// buildProviders instantiates all providers named in cfg using the registry.
// Capabilities with fallbacks configured are wrapped in a circuit-breaking
// failover group whose health is exposed as a readiness check. The returned
// closers release providers that hold native resources.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, []func() error, error) {
	ps := &app.Providers{
		LLMName: cfg.Providers.LLM.Name,
		STTName: cfg.Providers.STT.Name,
		VADName: cfg.Providers.VAD.Name,
	}
	var closers []func() error
	track := func(v any) {
		if c, ok := v.(io.Closer); ok {
			closers = append(closers, c.Close)
		}
	}
	// fail releases everything created so far, newest first.
	fail := func(err error) (*app.Providers, []func() error, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				slog.Warn("close provider after failed startup", "err", cerr)
			}
		}
		return nil, nil, err
	}
	fbCfg := fallbackConfig(cfg.Resilience)

	// ── LLM ───────────────────────────────────────────────────────────────────
	primaryLLM, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return fail(fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err))
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)
	ps.LLM = primaryLLM
	if len(cfg.Providers.LLMFallbacks) > 0 {
		group := resilience.NewLLMFallback(primaryLLM, cfg.Providers.LLM.Name, fbCfg)
		for _, entry := range cfg.Providers.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return fail(fmt.Errorf("create llm fallback %q: %w", entry.Name, err))
			}
			group.AddFallback(entry.Name, p)
			slog.Info("provider created", "kind", "llm", "name", entry.Name, "role", "fallback")
		}
		ps.LLM = group
		ps.Checks = append(ps.Checks, failoverCheck("llm_failover", group.Group()))
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	primarySTT, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return fail(fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err))
	}
	track(primarySTT)
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	ps.STT = primarySTT
	if len(cfg.Providers.STTFallbacks) > 0 {
		group := resilience.NewSTTFallback(primarySTT, cfg.Providers.STT.Name, fbCfg)
		for _, entry := range cfg.Providers.STTFallbacks {
			t, err := reg.CreateSTT(entry)
			if err != nil {
				return fail(fmt.Errorf("create stt fallback %q: %w", entry.Name, err))
			}
			track(t)
			group.AddFallback(entry.Name, t)
			slog.Info("provider created", "kind", "stt", "name", entry.Name, "role", "fallback")
		}
		ps.STT = group
		ps.Checks = append(ps.Checks, failoverCheck("stt_failover", group.Group()))
	}

	// ── VAD ───────────────────────────────────────────────────────────────────
	det, err := reg.CreateVAD(cfg.Providers.VAD)
	if err != nil {
		return fail(fmt.Errorf("create vad provider %q: %w", cfg.Providers.VAD.Name, err))
	}
	slog.Info("provider created", "kind", "vad", "name", cfg.Providers.VAD.Name)
	ps.VAD = det

	return ps, closers, nil
}

func fallbackConfig(rc config.ResilienceConfig) resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  rc.MaxFailures,
			ResetTimeout: rc.ResetTimeout,
			HalfOpenMax:  rc.HalfOpenMax,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "provider", name, "from", from, "to", to)
			},
		},
	}
}

// failoverCheck reports not-ready once every breaker in the group is open.
func failoverCheck[T any](name string, g *resilience.FallbackGroup[T]) health.Checker {
	return health.Checker{
		Name: name,
		Check: func(context.Context) error {
			if g.Healthy() {
				return nil
			}
			return fmt.Errorf("all circuit breakers open: %v", g.States())
		},
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optStrings extracts a list of strings. YAML sequences decode as []any.
func optStrings(opts map[string]any, key string) []string {
	switch v := opts[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// optFloat extracts a number. The bool reports whether the key was present.
func optFloat(opts map[string]any, key string) (float64, bool, error) {
	v, ok := opts[key]
	if !ok {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case int:
		return float64(n), true, nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, true, fmt.Errorf("option %s: %w", key, err)
		}
		return f, true, nil
	}
	return 0, true, fmt.Errorf("option %s: want a number, got %T", key, v)
}

// optDuration extracts a Go duration string such as "250ms". Absent keys
// yield zero.
func optDuration(opts map[string]any, key string) (time.Duration, error) {
	v, ok := opts[key]
	if !ok {
		return 0, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("option %s: want a duration string, got %T", key, v)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("option %s: %w", key, err)
	}
	return d, nil
}
