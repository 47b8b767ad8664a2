package resilience

import (
	"context"

	"github.com/MrWong99/facetalk/pkg/provider/stt"
)

// STTFallback is an [stt.Provider] that opens each recognition stream on the
// first healthy recognizer. Failover happens only while opening; a stream
// that breaks mid-utterance surfaces to the listener as a recognition error
// and counts against that recognizer's breaker on the next attempt.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback wraps primary. Add alternatives with AddFallback before use.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a recognizer tried after the ones already added.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Names lists the recognizers in the order they are tried.
func (f *STTFallback) Names() []string { return f.group.Names() }

// StartStream implements [stt.Provider]. The same StreamConfig, keyword
// boosts included, is passed to whichever recognizer accepts the stream.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}
