// Package openai provides an STT provider backed by the OpenAI audio
// transcription endpoint (Whisper API).
//
// The endpoint is request/response only, so sessions are built on package
// batch: audio is buffered and each utterance is uploaded as a WAV file once
// trailing silence is detected or the session is closed.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/facetalk/pkg/audio"
	"github.com/MrWong99/facetalk/pkg/provider/stt"
	"github.com/MrWong99/facetalk/pkg/provider/stt/batch"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client  oai.Client
	model   oai.AudioModel
	silence time.Duration
}

type config struct {
	baseURL string
	model   string
	timeout time.Duration
	silence time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the transcription model (e.g. "gpt-4o-mini-transcribe").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSilenceThreshold sets the trailing silence that commits an utterance.
func WithSilenceThreshold(d time.Duration) Option {
	return func(c *config) {
		c.silence = d
	}
}

// New constructs an OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	cfg := &config{model: string(DefaultModel), timeout: 30 * time.Second}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}),
		option.WithMaxRetries(1),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   oai.AudioModel(cfg.model),
		silence: cfg.silence,
	}, nil
}

// StartStream opens a buffered transcription session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: context already cancelled: %w", err)
	}
	lang, _, _ := strings.Cut(cfg.Language, "-")
	prompt := keywordPrompt(cfg)

	bc := batch.Config{
		Format:  audio.Format{SampleRate: cfg.SampleRate, Channels: cfg.Channels},
		Silence: p.silence,
		Name:    "openai stt",
	}
	return batch.Start(ctx, bc, func(ctx context.Context, pcm []byte, f audio.Format) (string, error) {
		params := oai.AudioTranscriptionNewParams{
			File:  oai.File(bytes.NewReader(audio.EncodeWAV(pcm, f)), "utterance.wav", "audio/wav"),
			Model: p.model,
		}
		if lang != "" {
			params.Language = oai.String(lang)
		}
		if prompt != "" {
			params.Prompt = oai.String(prompt)
		}
		resp, err := p.client.Audio.Transcriptions.New(ctx, params)
		if err != nil {
			return "", fmt.Errorf("openai stt: transcribe: %w", err)
		}
		return strings.TrimSpace(resp.Text), nil
	}), nil
}

// keywordPrompt turns keyword hints into a transcription prompt. Whisper
// models bias toward spellings that appear in the prompt.
func keywordPrompt(cfg stt.StreamConfig) string {
	if len(cfg.Keywords) == 0 {
		return ""
	}
	words := make([]string, 0, len(cfg.Keywords))
	for _, kw := range cfg.Keywords {
		words = append(words, kw.Keyword)
	}
	return "Vocabulary: " + strings.Join(words, ", ") + "."
}
