// Package audio holds the PCM plumbing shared by speech providers and the
// websocket transport: format descriptions, 16-bit PCM helpers, WAV
// encoding, resampling, and the [Sink] that synthesized speech is written to.
//
// All PCM in this package is signed 16-bit little-endian, interleaved when
// there is more than one channel.
package audio

import (
	"context"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// Recognition is the format every STT provider receives.
var Recognition = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM byte rate of f.
func (f Format) BytesPerSecond() int {
	ch := f.Channels
	if ch <= 0 {
		ch = 1
	}
	return f.SampleRate * ch * 2
}

// Duration returns the playback length of n bytes of PCM in format f.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps <= 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// String returns a human-readable form such as "48000Hz stereo".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// Sink receives synthesized speech for playback.
//
// WritePCM must not retain pcm after returning. Implementations must be safe
// for concurrent use; the speaker writes from its session goroutine while
// the transport may tear the sink down at any time.
type Sink interface {
	WritePCM(ctx context.Context, pcm []byte, f Format) error
}

// SinkFunc adapts a plain function to [Sink].
type SinkFunc func(ctx context.Context, pcm []byte, f Format) error

// WritePCM calls fn.
func (fn SinkFunc) WritePCM(ctx context.Context, pcm []byte, f Format) error {
	return fn(ctx, pcm, f)
}

// Discard is a Sink that drops all audio.
var Discard Sink = SinkFunc(func(context.Context, []byte, Format) error { return nil })
