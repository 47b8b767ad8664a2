// Package speech adapts the STT and TTS providers to the single-utterance,
// single-voice loop of the avatar.
//
// A [Listener] runs one recognition session per call and returns the first
// final transcript. A [Speaker] plays one answer at a time: starting a new
// answer cancels the previous one, and playback is reported to an [Observer]
// as a sequence of viseme states derived from word boundaries.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/pkg/audio"
	"github.com/MrWong99/facetalk/pkg/provider/stt"
	"github.com/MrWong99/facetalk/pkg/types"
)

var (
	// ErrUnsupported is returned when no recognition backend is configured.
	ErrUnsupported = errors.New("speech: recognition is not supported")

	// ErrNoSpeech is returned when the audio source ends before a final
	// transcript arrives.
	ErrNoSpeech = errors.New("speech: no speech recognized")
)

// Listener turns one stream of microphone audio into one final transcript.
type Listener struct {
	provider stt.Provider
	name     string
	cfg      stt.StreamConfig
	metrics  *observe.Metrics
}

// ListenerOption configures a [Listener].
type ListenerOption func(*Listener)

// WithLanguage sets the recognition locale. Default "en-US".
func WithLanguage(tag string) ListenerOption {
	return func(l *Listener) { l.cfg.Language = tag }
}

// WithKeywords passes vocabulary hints to the provider.
func WithKeywords(kw []types.KeywordBoost) ListenerOption {
	return func(l *Listener) { l.cfg.Keywords = kw }
}

// WithProviderName sets the name used in logs and metrics.
func WithProviderName(name string) ListenerOption {
	return func(l *Listener) { l.name = name }
}

// WithListenerMetrics records recognition latency and provider errors.
func WithListenerMetrics(m *observe.Metrics) ListenerOption {
	return func(l *Listener) { l.metrics = m }
}

// NewListener returns a Listener backed by p. A nil p yields a Listener whose
// Listen always reports [ErrUnsupported].
func NewListener(p stt.Provider, opts ...ListenerOption) *Listener {
	l := &Listener{
		provider: p,
		name:     "stt",
		cfg: stt.StreamConfig{
			SampleRate: audio.Recognition.SampleRate,
			Channels:   audio.Recognition.Channels,
			Language:   "en-US",
		},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Supported reports whether a recognition backend is configured.
func (l *Listener) Supported() bool { return l != nil && l.provider != nil }

// Listen opens one recognition session, forwards pcm to it, and returns the
// first non-empty final transcript. The session is closed on return.
//
// Closing pcm flushes the provider; if no final arrives afterwards Listen
// returns [ErrNoSpeech]. Cancelling ctx aborts with ctx.Err().
func (l *Listener) Listen(ctx context.Context, pcm <-chan []byte) (types.Transcript, error) {
	if !l.Supported() {
		return types.Transcript{}, ErrUnsupported
	}
	start := time.Now()
	sess, err := l.provider.StartStream(ctx, l.cfg)
	if err != nil {
		l.recordError(ctx)
		return types.Transcript{}, fmt.Errorf("speech: start recognition: %w", err)
	}
	defer sess.Close()
	go audio.Drain(sess.Partials())

	feedCtx, stopFeed := context.WithCancel(ctx)
	fed := make(chan struct{})
	go func() {
		defer close(fed)
		l.feed(feedCtx, sess, pcm)
	}()
	defer func() {
		stopFeed()
		<-fed
	}()

	finals := sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return types.Transcript{}, ctx.Err()
		case t, ok := <-finals:
			if !ok {
				l.record(ctx, "ok", start)
				return types.Transcript{}, ErrNoSpeech
			}
			if strings.TrimSpace(t.Text) == "" {
				continue
			}
			l.record(ctx, "ok", start)
			return t, nil
		}
	}
}

// feed copies pcm into sess until pcm closes, the session rejects audio, or
// ctx ends. When pcm closes the session is closed so the provider flushes.
func (l *Listener) feed(ctx context.Context, sess stt.SessionHandle, pcm <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-pcm:
			if !ok {
				if err := sess.Close(); err != nil {
					slog.Warn("speech: closing recognition session", "provider", l.name, "error", err)
				}
				return
			}
			if err := sess.SendAudio(chunk); err != nil {
				if !errors.Is(err, stt.ErrSessionClosed) {
					l.recordError(ctx)
					slog.Warn("speech: sending audio", "provider", l.name, "error", err)
					_ = sess.Close()
				}
				return
			}
		}
	}
}

func (l *Listener) record(ctx context.Context, status string, start time.Time) {
	if l.metrics == nil {
		return
	}
	l.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	l.metrics.RecordProviderRequest(ctx, l.name, "stt", status)
}

func (l *Listener) recordError(ctx context.Context) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordProviderRequest(ctx, l.name, "stt", "error")
	l.metrics.RecordProviderError(ctx, l.name, "stt")
}
