// Package stt defines the Provider interface for Speech-to-Text backends.
//
// A provider wraps a transcription service (Deepgram, the OpenAI Whisper API,
// a local whisper.cpp server) behind one streaming shape: a SessionHandle
// accepts raw PCM chunks and emits interim and final transcripts on two
// channels. The voice Q&A loop only needs a single utterance per session, so
// callers typically read the first non-empty final and close the session.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"

	"github.com/MrWong99/facetalk/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after Close has been called.
var ErrSessionClosed = errors.New("stt: session closed")

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Browser capture is resampled to
	// 16000 before it reaches a provider.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string

	// Keywords are vocabulary hints taken from the Q&A corpus.
	Keywords []types.KeywordBoost
}

// SessionHandle represents an open streaming session.
//
// Callers must call Close when the session is no longer needed. After Close
// returns, Partials and Finals are closed once any pending audio has been
// flushed. Calling Close more than once is safe and returns nil.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit little-endian PCM matching the
	// StreamConfig. Calling SendAudio after Close returns ErrSessionClosed.
	SendAudio(chunk []byte) error

	// Partials emits low-latency interim results. Closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals emits authoritative results. Closed when the session ends.
	Finals() <-chan types.Transcript

	// Close flushes pending audio and releases the session.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// handle is ready to accept audio immediately.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
