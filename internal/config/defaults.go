package config

import "time"

// Default values applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8765"
	DefaultWSPath         = "/"
	DefaultWriteTimeout   = 5 * time.Second
	DefaultReadLimit      = 4 << 20
	DefaultSampleRate     = 16000
	DefaultChannels       = 1
	DefaultSegmentBytes   = 32000
	DefaultMaxTranscribe  = 4
	DefaultAssistantName  = "JARVIS"
	DefaultContextLines   = 10
	DefaultRelayCapacity  = 64
	DefaultPollInterval   = time.Second
	DefaultErrorBackoff   = time.Second
	DefaultLLMTimeout     = 30 * time.Second
	DefaultWakeThreshold  = 0.85
	DefaultServiceName    = "jarvis"
	DefaultMetricsPath    = "/metrics"
	DefaultVADProvider    = "energy"
	DefaultLLMProvider    = "gemini"
	DefaultSTTProvider    = "whisper"
	defaultPromptTemplate = "You are a digital assistant named "
)

// ApplyDefaults fills every zero-valued field of cfg with its default.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	s := &cfg.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.WSPath == "" {
		s.WSPath = DefaultWSPath
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.ReadLimit == 0 {
		s.ReadLimit = DefaultReadLimit
	}

	p := &cfg.Providers
	if p.LLM.Name == "" {
		p.LLM.Name = DefaultLLMProvider
	}
	if p.STT.Name == "" {
		p.STT.Name = DefaultSTTProvider
	}
	if p.VAD.Name == "" {
		p.VAD.Name = DefaultVADProvider
	}

	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = DefaultSampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = DefaultChannels
	}

	pl := &cfg.Pipeline
	if pl.SegmentMode == "" {
		pl.SegmentMode = SegmentMessage
	}
	if pl.SegmentBytes == 0 {
		pl.SegmentBytes = DefaultSegmentBytes
	}
	if pl.MaxConcurrentTranscriptions == 0 {
		pl.MaxConcurrentTranscriptions = DefaultMaxTranscribe
	}

	a := &cfg.Assistant
	if a.Name == "" {
		a.Name = DefaultAssistantName
	}
	if pl.PromptHint == "" {
		pl.PromptHint = defaultPromptTemplate + a.Name
	}
	if a.ContextLines == 0 {
		a.ContextLines = DefaultContextLines
	}
	if a.RelayCapacity == 0 {
		a.RelayCapacity = DefaultRelayCapacity
	}
	if a.OverflowPolicy == "" {
		a.OverflowPolicy = OverflowDropOldest
	}
	if a.PollInterval == 0 {
		a.PollInterval = DefaultPollInterval
	}
	if a.ErrorBackoff == 0 {
		a.ErrorBackoff = DefaultErrorBackoff
	}
	if a.LLMTimeout == 0 {
		a.LLMTimeout = DefaultLLMTimeout
	}
	if a.WakeThreshold == 0 {
		a.WakeThreshold = DefaultWakeThreshold
	}

	t := &cfg.Telemetry
	if t.ServiceName == "" {
		t.ServiceName = DefaultServiceName
	}
	if t.MetricsPath == "" {
		t.MetricsPath = DefaultMetricsPath
	}
}
