package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/facetalk/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: ":8080", LogLevel: config.LogInfo},
		Providers: config.ProvidersConfig{
			TTS:         config.ProviderEntry{Name: "elevenlabs", APIKey: "k"},
			TTSFallback: []config.ProviderEntry{{Name: "coqui", BaseURL: "http://localhost:5002"}},
		},
		Voice:  config.VoiceConfig{WPM: 160},
		QA:     config.QAConfig{CorpusFile: "corpus.yaml", Threshold: 0.4},
		Avatar: config.AvatarConfig{FrameRate: 60},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	d := config.Diff(baseConfig(), baseConfig())
	if d.Changed() {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("log level is live, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_AvatarFlags(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Avatar.AutoAnimate = true

	d := config.Diff(old, new)
	if !d.AvatarChanged {
		t.Fatal("expected AvatarChanged=true")
	}
	if !d.NewAutoAnimate || d.NewReducedMotion {
		t.Errorf("got auto=%v reduced=%v, want true false", d.NewAutoAnimate, d.NewReducedMotion)
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("avatar flags are live, got RestartRequired=%v", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }, "server"},
		{"tts name", func(c *config.Config) { c.Providers.TTS.Name = "openai" }, "providers"},
		{"fallback removed", func(c *config.Config) { c.Providers.TTSFallback = nil }, "providers"},
		{"stt added", func(c *config.Config) { c.Providers.STT.Name = "whisper" }, "providers"},
		{"stt fallback added", func(c *config.Config) {
			c.Providers.STTFallback = []config.ProviderEntry{{Name: "openai"}}
		}, "providers"},
		{"voice wpm", func(c *config.Config) { c.Voice.WPM = 200 }, "voice"},
		{"corpus file", func(c *config.Config) { c.QA.CorpusFile = "other.yaml" }, "qa"},
		{"frame rate", func(c *config.Config) { c.Avatar.FrameRate = 30 }, "avatar"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			new := baseConfig()
			tt.mutate(new)
			d := config.Diff(baseConfig(), new)
			if !slices.Contains(d.RestartRequired, tt.want) {
				t.Errorf("RestartRequired = %v, want it to contain %q", d.RestartRequired, tt.want)
			}
			if d.LogLevelChanged || d.AvatarChanged {
				t.Errorf("unexpected live change: %+v", d)
			}
		})
	}
}

func TestDiff_PhoneticCorrectionDefault(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	enabled := true
	new.QA.PhoneticCorrection = &enabled

	// nil and true both mean enabled.
	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("expected no change, got %+v", d)
	}
}
