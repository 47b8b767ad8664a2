// Package config provides the configuration schema, loader, and provider
// registry for the facetalk server.
package config

import "time"

// LogLevel controls log verbosity for the facetalk server.
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

// LogFormat selects the slog handler.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Defaults applied by [ApplyDefaults] to fields left empty.
const (
	DefaultListenAddr  = ":8080"
	DefaultLanguage    = "en-US"
	DefaultWPM         = 160
	DefaultDecayMS     = 120
	DefaultDecayFactor = 0.3
	DefaultThreshold   = 0.4
	DefaultFrameRate   = 60
)

// Config is the root configuration structure for facetalk.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Voice     VoiceConfig     `yaml:"voice"`
	QA        QAConfig        `yaml:"qa"`
	Avatar    AvatarConfig    `yaml:"avatar"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is reloaded live by the [Watcher].
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or JSON log output. Default: text.
	LogFormat LogFormat `yaml:"log_format"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`

	// AllowedOrigins lists origin patterns accepted by the session websocket
	// in addition to the request's own host.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProvidersConfig selects the speech providers. Each entry names a provider
// registered in the [Registry].
type ProvidersConfig struct {
	// STT is optional. Without it, listening reports that recognition is
	// unavailable and clients fall back to typed questions.
	STT ProviderEntry `yaml:"stt"`

	// TTS is the primary synthesis provider.
	TTS ProviderEntry `yaml:"tts"`

	// TTSFallback lists providers tried in order when the primary fails
	// before producing audio. Typically a local coqui server.
	TTSFallback []ProviderEntry `yaml:"tts_fallback"`

	// STTFallback lists recognizers tried in order when the primary cannot
	// open a stream. Ignored without a primary.
	STTFallback []ProviderEntry `yaml:"stt_fallback"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint. Local servers
	// (whisper, coqui) require it.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig controls speech recognition locale and synthesis timing.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Language is the BCP-47 recognition locale. Default: en-US.
	Language string `yaml:"language"`

	// WPM is the speaking rate used to simulate word timing when the
	// provider reports none. Default: 160.
	WPM int `yaml:"wpm"`

	// DecayMS is how long a word's viseme holds before its intensity decays.
	DecayMS int `yaml:"decay_ms"`

	// DecayFactor scales the viseme intensity on decay.
	DecayFactor float64 `yaml:"decay_factor"`

	// PitchShift adjusts pitch in the range [-10, +10]. 0 means default.
	PitchShift float64 `yaml:"pitch_shift"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 1.0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// Decay returns DecayMS as a duration.
func (v VoiceConfig) Decay() time.Duration {
	return time.Duration(v.DecayMS) * time.Millisecond
}

// QAConfig locates the answer corpus and tunes matching.
type QAConfig struct {
	// CorpusFile is the YAML file of question/answer entries. Required.
	CorpusFile string `yaml:"corpus_file"`

	// Threshold is the highest accepted match score in [0, 1]. Default: 0.4.
	Threshold float64 `yaml:"threshold"`

	// FallbackAnswer replaces the built-in answer for unmatched questions.
	FallbackAnswer string `yaml:"fallback_answer"`

	// PhoneticCorrection rewrites transcripts toward the corpus vocabulary
	// before matching. Default: true.
	PhoneticCorrection *bool `yaml:"phonetic_correction"`
}

// CorrectionEnabled reports whether transcripts are corrected before matching.
func (q QAConfig) CorrectionEnabled() bool {
	return q.PhoneticCorrection == nil || *q.PhoneticCorrection
}

// AvatarConfig controls the server-side animation loop.
type AvatarConfig struct {
	// AssetFile is a glTF/GLB avatar. When empty the built-in rig is used.
	AssetFile string `yaml:"asset_file"`

	// AutoAnimate starts new sessions in auto-animate mode. Reloaded live.
	AutoAnimate bool `yaml:"auto_animate"`

	// ReducedMotion lowers head-tracking intensity. Reloaded live.
	ReducedMotion bool `yaml:"reduced_motion"`

	// FrameRate is the number of frames per second streamed to a session.
	FrameRate int `yaml:"frame_rate"`
}

// FrameInterval returns the time between two frames.
func (a AvatarConfig) FrameInterval() time.Duration {
	rate := a.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}
	return time.Second / time.Duration(rate)
}
