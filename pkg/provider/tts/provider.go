// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A provider turns a complete answer into a Stream: raw 16-bit mono PCM
// chunks plus, where the backend can report them, word-boundary events
// aligned to playback. Remote streaming services (ElevenLabs, OpenAI) only
// return audio, so their Stream carries a nil Boundaries channel and the
// caller simulates timing from an assumed speaking rate.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"sync"

	"github.com/MrWong99/facetalk/pkg/types"
)

// Kind classifies where synthesis happens.
type Kind int

const (
	// KindRemote is a network service that may fail for auth or network reasons.
	KindRemote Kind = iota

	// KindLocal is a synthesizer running on the same host or LAN.
	KindLocal
)

// Stream is the output of one synthesis request.
type Stream struct {
	// Audio emits PCM chunks in order. The provider closes it when synthesis
	// completes, fails, or the request context is cancelled.
	Audio <-chan []byte

	// Boundaries emits word boundaries in playback order. Nil when the
	// provider cannot report them. Closed no later than Audio.
	Boundaries <-chan types.WordBoundary

	// SampleRate of the PCM in Audio, in Hz.
	SampleRate int

	errOnce sync.Once
	errMu   sync.Mutex
	err     error
}

// Err returns the error that ended the stream early, if any. Only meaningful
// after Audio has been closed.
func (s *Stream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Fail records the first error that terminated the stream. Providers call it
// before closing Audio.
func (s *Stream) Fail(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
	})
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize starts synthesis of text with the given voice.
	//
	// Returns a non-nil error only if the request cannot be started. Errors
	// during synthesis end the stream early and are reported by Stream.Err.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*Stream, error)

	// ListVoices returns the voices available from this provider.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// Kind reports whether synthesis is remote or local.
	Kind() Kind
}
