package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/facetalk/pkg/provider/tts"
	"github.com/MrWong99/facetalk/pkg/types"
)

// errEmptyStream marks a stream that closed without audio or error.
var errEmptyStream = errors.New("tts stream produced no audio")

// TTSFallback implements [tts.Provider] with failover across several TTS
// backends, typically a remote voice first and a local synthesizer last.
//
// A backend counts as failed when Synthesize returns an error or when its
// stream ends before the first audio chunk. Once audio has started the
// stream is committed; later errors surface through Stream.Err.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Names returns the backend names in failover order.
func (f *TTSFallback) Names() []string { return f.group.Names() }

// Kind reports the kind of the primary backend.
func (f *TTSFallback) Kind() tts.Kind { return f.group.Primary().Kind() }

// Synthesize starts synthesis on the first backend that delivers audio.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Stream, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Stream, error) {
		s, err := p.Synthesize(ctx, text, voice)
		if err != nil {
			return nil, err
		}
		select {
		case first, ok := <-s.Audio:
			if !ok {
				if err := s.Err(); err != nil {
					return nil, err
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, errEmptyStream
			}
			return relay(ctx, s, first), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// relay returns a stream that replays first and then forwards the rest of s.
func relay(ctx context.Context, s *tts.Stream, first []byte) *tts.Stream {
	audioCh := make(chan []byte, cap(s.Audio)+1)
	out := &tts.Stream{Audio: audioCh, Boundaries: s.Boundaries, SampleRate: s.SampleRate}
	audioCh <- first
	go func() {
		defer close(audioCh)
		for chunk := range s.Audio {
			select {
			case audioCh <- chunk:
			case <-ctx.Done():
				// The provider stops on the same context; let it finish.
				for range s.Audio {
				}
				return
			}
		}
		out.Fail(s.Err())
	}()
	return out
}

// ListVoices returns available voices from the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]types.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
