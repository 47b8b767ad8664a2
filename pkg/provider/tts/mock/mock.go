// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks and word boundaries to
// consumers and to verify which text and VoiceProfile reached the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Chunks:     [][]byte{make([]byte, 3200)},
//	    SampleRate: 16000,
//	}
//	s, _ := p.Synthesize(ctx, "hello there", voice)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/facetalk/pkg/provider/tts"
	"github.com/MrWong99/facetalk/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	Ctx   context.Context
	Text  string
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of audio byte slices emitted on Stream.Audio.
	Chunks [][]byte

	// Boundaries, if non-nil, are emitted on Stream.Boundaries. A nil slice
	// leaves Stream.Boundaries nil.
	Boundaries []types.WordBoundary

	// SampleRate is reported on the stream. Defaults to 16000.
	SampleRate int

	// ChunkDelay is slept before each chunk is sent.
	ChunkDelay time.Duration

	// Hold keeps the audio channel open after Chunks until the request
	// context is cancelled. Useful for testing cancellation.
	Hold bool

	// StreamErr, if non-nil, ends the stream after Chunks with this error.
	StreamErr error

	// SynthesizeErr, if non-nil, is returned from Synthesize.
	SynthesizeErr error

	// ProviderKind is returned by Kind.
	ProviderKind tts.Kind

	ListVoicesResult []types.VoiceProfile
	ListVoicesErr    error

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	// ListVoicesCalls counts calls to ListVoices.
	ListVoicesCalls int
}

// Synthesize records the call and, if SynthesizeErr is nil, returns a stream
// that emits Chunks then closes.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (*tts.Stream, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text, Voice: voice})
	if p.SynthesizeErr != nil {
		err := p.SynthesizeErr
		p.mu.Unlock()
		return nil, err
	}
	chunks := make([][]byte, len(p.Chunks))
	copy(chunks, p.Chunks)
	var bounds []types.WordBoundary
	if p.Boundaries != nil {
		bounds = append([]types.WordBoundary{}, p.Boundaries...)
	}
	rate := p.SampleRate
	if rate == 0 {
		rate = 16000
	}
	delay, hold, streamErr := p.ChunkDelay, p.Hold, p.StreamErr
	p.mu.Unlock()

	audioCh := make(chan []byte, len(chunks))
	s := &tts.Stream{Audio: audioCh, SampleRate: rate}
	if bounds != nil {
		bch := make(chan types.WordBoundary, len(bounds))
		for _, b := range bounds {
			bch <- b
		}
		close(bch)
		s.Boundaries = bch
	}

	go func() {
		defer close(audioCh)
		for _, audio := range chunks {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case audioCh <- audio:
			}
		}
		if streamErr != nil {
			s.Fail(streamErr)
			return
		}
		if hold {
			<-ctx.Done()
		}
	}()
	return s, nil
}

// ListVoices records the call and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ListVoicesCalls++
	return p.ListVoicesResult, p.ListVoicesErr
}

// Kind returns ProviderKind.
func (p *Provider) Kind() tts.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ProviderKind
}

// Calls returns a copy of the recorded Synthesize calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SynthesizeCall(nil), p.SynthesizeCalls...)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.ListVoicesCalls = 0
}

var _ tts.Provider = (*Provider)(nil)
