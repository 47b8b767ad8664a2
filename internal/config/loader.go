package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"whisper", "deepgram", "openai"},
	"tts": {"elevenlabs", "openai", "coqui"},
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

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
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

// ApplyDefaults fills zero-valued fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Voice.Language == "" {
		cfg.Voice.Language = DefaultLanguage
	}
	if cfg.Voice.WPM == 0 {
		cfg.Voice.WPM = DefaultWPM
	}
	if cfg.Voice.DecayMS == 0 {
		cfg.Voice.DecayMS = DefaultDecayMS
	}
	if cfg.Voice.DecayFactor == 0 {
		cfg.Voice.DecayFactor = DefaultDecayFactor
	}
	if cfg.QA.Threshold == 0 {
		cfg.QA.Threshold = DefaultThreshold
	}
	if cfg.Avatar.FrameRate == 0 {
		cfg.Avatar.FrameRate = DefaultFrameRate
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; speech recognition will be unavailable")
	}
	validateProviderName("stt", cfg.Providers.STT.Name)
	for i, fb := range cfg.Providers.TTSFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.tts_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("tts", fb.Name)
	}
	for i, fb := range cfg.Providers.STTFallback {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.stt_fallback[%d].name is required", i))
			continue
		}
		validateProviderName("stt", fb.Name)
	}

	// Voice
	if cfg.Voice.WPM < 0 {
		errs = append(errs, fmt.Errorf("voice.wpm %d must not be negative", cfg.Voice.WPM))
	}
	if cfg.Voice.DecayMS < 0 {
		errs = append(errs, fmt.Errorf("voice.decay_ms %d must not be negative", cfg.Voice.DecayMS))
	}
	if cfg.Voice.DecayFactor < 0 || cfg.Voice.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("voice.decay_factor %.2f is out of range [0, 1]", cfg.Voice.DecayFactor))
	}
	if cfg.Voice.SpeedFactor != 0 && (cfg.Voice.SpeedFactor < 0.5 || cfg.Voice.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", cfg.Voice.SpeedFactor))
	}
	if cfg.Voice.PitchShift < -10 || cfg.Voice.PitchShift > 10 {
		errs = append(errs, fmt.Errorf("voice.pitch_shift %.2f is out of range [-10, 10]", cfg.Voice.PitchShift))
	}

	// QA
	if cfg.QA.CorpusFile == "" {
		errs = append(errs, errors.New("qa.corpus_file is required"))
	}
	if cfg.QA.Threshold < 0 || cfg.QA.Threshold > 1 {
		errs = append(errs, fmt.Errorf("qa.threshold %.2f is out of range [0, 1]", cfg.QA.Threshold))
	}

	// Avatar
	if cfg.Avatar.FrameRate < 0 || cfg.Avatar.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("avatar.frame_rate %d is out of range [1, 240]", cfg.Avatar.FrameRate))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
