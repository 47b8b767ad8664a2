package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/facetalk/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "invalid log level",
			yaml:    "server:\n  log_level: verbose\n",
			wantErr: "log_level",
		},
		{
			name:    "invalid log format",
			yaml:    "server:\n  log_format: xml\n",
			wantErr: "log_format",
		},
		{
			name:    "tls without key",
			yaml:    "server:\n  tls:\n    cert_file: cert.pem\n",
			wantErr: "server.tls",
		},
		{
			name:    "fallback without name",
			yaml:    "providers:\n  tts_fallback:\n    - base_url: http://localhost:5002\n",
			wantErr: "tts_fallback[0].name",
		},
		{
			name:    "stt fallback without name",
			yaml:    "providers:\n  stt_fallback:\n    - model: whisper-1\n",
			wantErr: "stt_fallback[0].name",
		},
		{
			name:    "decay factor out of range",
			yaml:    "voice:\n  decay_factor: 1.5\n",
			wantErr: "decay_factor",
		},
		{
			name:    "speed factor out of range",
			yaml:    "voice:\n  speed_factor: 5.0\n",
			wantErr: "speed_factor",
		},
		{
			name:    "pitch shift out of range",
			yaml:    "voice:\n  pitch_shift: -11\n",
			wantErr: "pitch_shift",
		},
		{
			name:    "negative wpm",
			yaml:    "voice:\n  wpm: -1\n",
			wantErr: "wpm",
		},
		{
			name:    "threshold out of range",
			yaml:    "qa:\n  threshold: 2\n",
			wantErr: "qa.threshold",
		},
		{
			name:    "frame rate out of range",
			yaml:    "avatar:\n  frame_rate: 1000\n",
			wantErr: "frame_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error mentioning %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error should mention %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_JoinsAllErrors(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
voice:
  decay_factor: 3
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "decay_factor", "providers.tts.name", "qa.corpus_file"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}

func TestValidate_STTOptional(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.STT.Name != "" {
		t.Errorf("providers.stt.name: got %q, want empty", cfg.Providers.STT.Name)
	}
}

func TestValidate_UnknownProviderNameIsNotAnError(t *testing.T) {
	t.Parallel()
	yaml := `
providers:
  tts:
    name: my-custom-tts
qa:
  corpus_file: corpus.yaml
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected a not-exist error, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.QA.CorpusFile != "corpus.yaml" {
		t.Errorf("qa.corpus_file: got %q", cfg.QA.CorpusFile)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load(filepath.Join("..", "..", "configs", "example.yaml"))
	if err != nil {
		t.Fatalf("example config does not load: %v", err)
	}
	if cfg.Providers.TTS.Name == "" || cfg.QA.CorpusFile == "" {
		t.Errorf("example config lacks required fields: %+v", cfg)
	}
}
