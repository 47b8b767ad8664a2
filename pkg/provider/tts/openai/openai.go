// Package openai provides a TTS provider backed by the OpenAI speech endpoint.
//
// The endpoint streams raw 24 kHz 16-bit mono PCM in the response body and
// reports no word timing, so streams carry a nil Boundaries channel.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/facetalk/pkg/provider/tts"
	"github.com/MrWong99/facetalk/pkg/types"
)

const (
	// SampleRate of the PCM returned by the speech endpoint.
	SampleRate = 24000

	// DefaultVoice is used when the request does not name a voice.
	DefaultVoice = "alloy"

	readChunk = 4800 // 100 ms
)

// DefaultModel is the speech model used when none is configured.
const DefaultModel = oai.SpeechModelTTS1

// voices offered by the speech endpoint. The API has no catalogue call.
var voices = []string{"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer"}

var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
}

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel selects the speech model (e.g. "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout bounds the whole request, including streaming the body.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs an OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: string(DefaultModel), timeout: 60 * time.Second}
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
		client: oai.NewClient(reqOpts...),
		model:  oai.SpeechModel(cfg.model),
	}, nil
}

// Kind reports KindRemote.
func (p *Provider) Kind() tts.Kind { return tts.KindRemote }

// Synthesize requests PCM for text and streams the response body as it
// arrives.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Stream, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	id := voice.ID
	if id == "" {
		id = DefaultVoice
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          p.model,
		Voice:          oai.AudioSpeechNewParamsVoice(id),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 {
		params.Speed = oai.Float(voice.SpeedFactor)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech: %w", err)
	}

	audioCh := make(chan []byte, 64)
	s := &tts.Stream{Audio: audioCh, SampleRate: SampleRate}

	go func() {
		defer close(audioCh)
		defer resp.Body.Close()

		// carry holds an odd trailing byte so every chunk is sample aligned.
		var carry []byte
		buf := make([]byte, readChunk)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := append(carry, buf[:n]...)
				even := len(chunk) &^ 1
				carry = append([]byte(nil), chunk[even:]...)
				if even > 0 {
					select {
					case audioCh <- chunk[:even]:
					case <-ctx.Done():
						return
					}
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					s.Fail(fmt.Errorf("openai tts: read: %w", err))
				}
				return
			}
		}
	}()

	return s, nil
}

// ListVoices returns the fixed set of built-in voices.
func (p *Provider) ListVoices(context.Context) ([]types.VoiceProfile, error) {
	out := make([]types.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, types.VoiceProfile{
			ID:       v,
			Name:     strings.ToUpper(v[:1]) + v[1:],
			Provider: "openai",
			Metadata: map[string]string{"model": string(p.model)},
		})
	}
	return out, nil
}
