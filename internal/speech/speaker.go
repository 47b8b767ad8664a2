package speech

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/facetalk/internal/avatar/viseme"
	"github.com/MrWong99/facetalk/internal/observe"
	"github.com/MrWong99/facetalk/pkg/audio"
	"github.com/MrWong99/facetalk/pkg/provider/tts"
	"github.com/MrWong99/facetalk/pkg/types"
)

const (
	// DefaultWPM is the speaking rate assumed when a provider reports no
	// word boundaries.
	DefaultWPM = 160

	defaultDecayAfter  = 120 * time.Millisecond
	defaultDecayFactor = 0.3
)

// ErrEmptyText is returned by [Speaker.Speak] for blank text.
var ErrEmptyText = errors.New("speech: text must not be empty")

// Observer receives the progress of speech sessions. Calls for one
// generation arrive in order from a single goroutine; SpeechStarted is
// delivered from inside Speak before it returns.
//
// Implementations must not call back into the Speaker: Speak and Stop wait
// for the previous session to finish delivering its events.
type Observer interface {
	SpeechStarted(gen uint64, text string)
	Viseme(gen uint64, v viseme.State)
	SpeechEnded(gen uint64, interrupted bool)
}

// Speaker synthesizes one answer at a time into an [audio.Sink].
//
// Speak is last-call-wins: a new call cancels the session in flight and
// waits for it to exit before starting. Stop is idempotent. Each session
// runs on a context detached from the caller's, so returning from an HTTP
// handler does not cut speech short.
type Speaker struct {
	tts         tts.Provider
	name        string
	sink        audio.Sink
	voice       types.VoiceProfile
	wpm         int
	decayAfter  time.Duration
	decayFactor float64
	observer    Observer
	metrics     *observe.Metrics

	gen atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SpeakerOption configures a [Speaker].
type SpeakerOption func(*Speaker)

// WithVoice selects the synthesis voice.
func WithVoice(v types.VoiceProfile) SpeakerOption {
	return func(s *Speaker) { s.voice = v }
}

// WithWPM sets the speaking rate used to simulate word timing. Values <= 0
// keep [DefaultWPM].
func WithWPM(wpm int) SpeakerOption {
	return func(s *Speaker) {
		if wpm > 0 {
			s.wpm = wpm
		}
	}
}

// WithDecay sets how long after a word its viseme holds before intensity is
// scaled by factor. Default 120ms and 0.3.
func WithDecay(after time.Duration, factor float64) SpeakerOption {
	return func(s *Speaker) {
		s.decayAfter = after
		s.decayFactor = factor
	}
}

// WithObserver registers the session observer.
func WithObserver(o Observer) SpeakerOption {
	return func(s *Speaker) { s.observer = o }
}

// WithSpeakerName sets the provider name used in logs and metrics.
func WithSpeakerName(name string) SpeakerOption {
	return func(s *Speaker) { s.name = name }
}

// WithSpeakerMetrics records synthesis latency and session outcomes.
func WithSpeakerMetrics(m *observe.Metrics) SpeakerOption {
	return func(s *Speaker) { s.metrics = m }
}

// NewSpeaker returns a Speaker writing audio from p to sink.
func NewSpeaker(p tts.Provider, sink audio.Sink, opts ...SpeakerOption) (*Speaker, error) {
	if p == nil {
		return nil, errors.New("speech: tts provider must not be nil")
	}
	if sink == nil {
		return nil, errors.New("speech: audio sink must not be nil")
	}
	s := &Speaker{
		tts:         p,
		name:        "tts",
		sink:        sink,
		wpm:         DefaultWPM,
		decayAfter:  defaultDecayAfter,
		decayFactor: defaultDecayFactor,
		observer:    nopObserver{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	return s, nil
}

// Current returns the generation of the most recent Speak call, 0 before the
// first one. Observers compare against it to drop events of superseded
// sessions.
func (s *Speaker) Current() uint64 { return s.gen.Load() }

// Speak cancels any session in flight and starts speaking text. It returns
// the generation of the new session. Synthesis failures are logged and end
// the session; they are never returned.
func (s *Speaker) Speak(ctx context.Context, text string) (uint64, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	gen := s.gen.Add(1)
	s.stopLocked()

	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	s.observer.SpeechStarted(gen, text)
	go func() {
		defer close(done)
		defer cancel()
		s.run(sctx, gen, text)
	}()
	return gen, nil
}

// Stop cancels the session in flight, if any, and waits for it to exit. It
// reports whether a session was running. Safe to call at any time.
func (s *Speaker) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked()
}

// Speaking reports whether a session is in flight.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current session finishes or ctx ends.
func (s *Speaker) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListVoices returns the voices of the underlying provider.
func (s *Speaker) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return s.tts.ListVoices(ctx)
}

func (s *Speaker) stopLocked() bool {
	if s.done == nil {
		return false
	}
	done, cancel := s.done, s.cancel
	s.done, s.cancel = nil, nil
	select {
	case <-done:
		return false
	default:
	}
	cancel()
	<-done
	return true
}

// run drives one session: audio goes to the sink as it arrives, and word
// boundaries, real or simulated, are replayed against the wall clock from
// the first audio chunk. The session lasts as long as the audio it wrote
// takes to play.
func (s *Speaker) run(ctx context.Context, gen uint64, text string) {
	outcome := observe.OutcomeCompleted
	defer func() {
		s.observer.Viseme(gen, viseme.Closed)
		s.observer.SpeechEnded(gen, outcome == observe.OutcomeInterrupted)
		if s.metrics != nil {
			s.metrics.RecordSpeech(context.WithoutCancel(ctx), outcome)
		}
	}()

	start := time.Now()
	stream, err := s.tts.Synthesize(ctx, text, s.voice)
	if err != nil {
		if ctx.Err() != nil {
			outcome = observe.OutcomeInterrupted
			return
		}
		outcome = observe.OutcomeFailed
		s.recordError(ctx)
		slog.Warn("speech: synthesis failed", "provider", s.name, "error", err)
		return
	}
	defer func() {
		go audio.Drain(stream.Audio)
		go audio.Drain(stream.Boundaries)
	}()

	var (
		audioCh = stream.Audio
		bounds  = stream.Boundaries
		pending []types.WordBoundary
		format  = audio.Format{SampleRate: stream.SampleRate, Channels: 1}
		played  time.Duration
		t0      time.Time
		decayAt time.Time
		current = viseme.Closed
	)
	if bounds == nil {
		pending = SimulateBoundaries(text, s.wpm)
	}

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		var wake <-chan time.Time
		if next, ok := nextWake(t0, pending, decayAt, audioCh == nil, played); ok {
			timer.Reset(time.Until(next))
			wake = timer.C
		}

		select {
		case <-ctx.Done():
			outcome = observe.OutcomeInterrupted
			return
		case chunk, ok := <-audioCh:
			if !ok {
				audioCh = nil
				if t0.IsZero() {
					if ctx.Err() != nil {
						outcome = observe.OutcomeInterrupted
						return
					}
					if err := stream.Err(); err != nil {
						outcome = observe.OutcomeFailed
						s.recordError(ctx)
						slog.Warn("speech: synthesis ended without audio", "provider", s.name, "error", err)
					}
					return
				}
				if err := stream.Err(); err != nil {
					slog.Warn("speech: synthesis ended early", "provider", s.name, "error", err)
				}
				continue
			}
			if t0.IsZero() {
				t0 = time.Now()
				if s.metrics != nil {
					s.metrics.TTSDuration.Record(ctx, t0.Sub(start).Seconds())
					s.metrics.RecordProviderRequest(ctx, s.name, "tts", "ok")
				}
			}
			if err := s.sink.WritePCM(ctx, chunk, format); err != nil {
				if ctx.Err() != nil {
					outcome = observe.OutcomeInterrupted
					return
				}
				outcome = observe.OutcomeFailed
				slog.Warn("speech: writing audio", "error", err)
				return
			}
			played += format.Duration(len(chunk))
		case b, ok := <-bounds:
			if !ok {
				bounds = nil
				continue
			}
			pending = append(pending, b)
		case <-wake:
		}
		timer.Stop()

		if ctx.Err() != nil {
			outcome = observe.OutcomeInterrupted
			return
		}
		if t0.IsZero() {
			continue
		}
		now := time.Now()
		for len(pending) > 0 && !now.Before(t0.Add(pending[0].Offset)) {
			b := pending[0]
			pending = pending[1:]
			if audioCh == nil && b.Offset >= played {
				pending = nil
				break
			}
			current = viseme.MapWord(b.Word)
			s.observer.Viseme(gen, current)
			decayAt = now.Add(s.decayAfter)
		}
		if !decayAt.IsZero() && !now.Before(decayAt) {
			current = current.Scale(s.decayFactor)
			s.observer.Viseme(gen, current)
			decayAt = time.Time{}
		}
		if audioCh == nil && !now.Before(t0.Add(played)) {
			return
		}
	}
}

// nextWake returns the earliest pending deadline: the next boundary, the
// viseme decay, or the end of playback once all audio has arrived.
func nextWake(t0 time.Time, pending []types.WordBoundary, decayAt time.Time, audioDone bool, played time.Duration) (time.Time, bool) {
	if t0.IsZero() {
		return time.Time{}, false
	}
	var next time.Time
	earliest := func(t time.Time) {
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	if len(pending) > 0 {
		earliest(t0.Add(pending[0].Offset))
	}
	if !decayAt.IsZero() {
		earliest(decayAt)
	}
	if audioDone {
		earliest(t0.Add(played))
	}
	return next, !next.IsZero()
}

func (s *Speaker) recordError(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.metrics.RecordProviderRequest(ctx, s.name, "tts", "error")
	s.metrics.RecordProviderError(ctx, s.name, "tts")
}

// SimulateBoundaries assigns word i of text the offset (i+1) * 60000/wpm ms,
// the timing used when a provider cannot report real boundaries.
func SimulateBoundaries(text string, wpm int) []types.WordBoundary {
	if wpm <= 0 {
		wpm = DefaultWPM
	}
	words := tts.SplitWords(text)
	for i := range words {
		words[i].Offset = time.Duration(i+1) * time.Minute / time.Duration(wpm)
	}
	return words
}

type nopObserver struct{}

func (nopObserver) SpeechStarted(uint64, string) {}
func (nopObserver) Viseme(uint64, viseme.State)  {}
func (nopObserver) SpeechEnded(uint64, bool)     {}
