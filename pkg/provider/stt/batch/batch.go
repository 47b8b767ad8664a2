// Package batch turns a non-streaming transcription backend into an
// [stt.SessionHandle].
//
// The session buffers incoming PCM, segments utterances with an energy-based
// silence detector, and hands each completed utterance to a [Transcriber].
// Batch engines cannot produce real interim results, so every committed
// utterance is emitted as a partial and a final carrying the same text.
//
// The whisper.cpp and OpenAI providers both build on this package.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/facetalk/pkg/audio"
	"github.com/MrWong99/facetalk/pkg/provider/stt"
	"github.com/MrWong99/facetalk/pkg/types"
)

const (
	// DefaultRMSThreshold is the RMS level (16-bit PCM units) below which a
	// chunk counts as silence.
	DefaultRMSThreshold = 300.0

	DefaultSilence   = 500 * time.Millisecond
	DefaultMaxBuffer = 10 * time.Second

	// flushTimeout bounds the final transcription on Close, which runs on a
	// fresh context because the caller's may already be cancelled.
	flushTimeout = 30 * time.Second
)

// Transcriber transcribes one complete utterance of 16-bit PCM.
type Transcriber func(ctx context.Context, pcm []byte, f audio.Format) (string, error)

// Config describes a batch session.
type Config struct {
	Format       audio.Format
	RMSThreshold float64
	Silence      time.Duration
	MaxBuffer    time.Duration

	// Name prefixes log lines, e.g. "whisper".
	Name string
}

func (c *Config) applyDefaults() {
	if c.Format.SampleRate <= 0 {
		c.Format.SampleRate = audio.Recognition.SampleRate
	}
	if c.Format.Channels <= 0 {
		c.Format.Channels = 1
	}
	if c.RMSThreshold <= 0 {
		c.RMSThreshold = DefaultRMSThreshold
	}
	if c.Silence <= 0 {
		c.Silence = DefaultSilence
	}
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = DefaultMaxBuffer
	}
	if c.Name == "" {
		c.Name = "batch"
	}
}

// Session is a buffering [stt.SessionHandle]. All buffer state is confined to
// the process goroutine.
type Session struct {
	cfg        Config
	transcribe Transcriber

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

var _ stt.SessionHandle = (*Session)(nil)

// Start launches a session that runs until ctx is cancelled or Close is
// called. Either way the buffered utterance is flushed first.
func Start(ctx context.Context, cfg Config, transcribe Transcriber) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:        cfg,
		transcribe: transcribe,
		audioCh:    make(chan []byte, 256),
		partials:   make(chan types.Transcript, 64),
		finals:     make(chan types.Transcript, 64),
		done:       make(chan struct{}),
	}
	s.wg.Add(1)
	go s.process(ctx)
	return s
}

// SendAudio queues a PCM chunk. Returns stt.ErrSessionClosed after Close.
func (s *Session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Partials returns the interim channel.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the final channel.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close flushes any buffered speech, waits for the transcription, and closes
// both channels. Safe to call more than once.
func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

func (s *Session) process(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.partials)
	defer close(s.finals)

	var (
		buffer    []byte
		hadSpeech bool
		silence   time.Duration
		started   = time.Now()
	)
	maxBytes := int(int64(s.cfg.Format.BytesPerSecond()) * int64(s.cfg.MaxBuffer) / int64(time.Second))

	flush := func(fctx context.Context) {
		pcm, speech := buffer, hadSpeech
		buffer, hadSpeech, silence = nil, false, 0
		if len(pcm) == 0 || !speech {
			return
		}

		text, err := s.transcribe(fctx, pcm, s.cfg.Format)
		if err != nil {
			slog.Warn(s.cfg.Name+": transcription failed", "err", err)
			return
		}
		if text == "" {
			return
		}
		t := types.Transcript{
			Text:      text,
			Timestamp: time.Since(started),
			Duration:  s.cfg.Format.Duration(len(pcm)),
		}
		// Channels are buffered; skip rather than block shutdown if full.
		select {
		case s.partials <- t:
		default:
		}
		t.IsFinal = true
		select {
		case s.finals <- t:
		default:
		}
	}

	handle := func(chunk []byte) {
		d := s.cfg.Format.Duration(len(chunk))
		if audio.RMS(chunk) < s.cfg.RMSThreshold {
			// Leading silence before any speech is discarded.
			if !hadSpeech {
				return
			}
			silence += d
			buffer = append(buffer, chunk...)
			if silence >= s.cfg.Silence {
				flush(ctx)
			}
			return
		}
		hadSpeech = true
		silence = 0
		buffer = append(buffer, chunk...)
		if maxBytes > 0 && len(buffer) >= maxBytes {
			flush(ctx)
		}
	}

	// finalFlush consumes audio queued before Close, then transcribes what is
	// left on a fresh context.
	finalFlush := func() {
		fc, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()
	drain:
		for {
			select {
			case chunk := <-s.audioCh:
				buffer = append(buffer, chunk...)
				if audio.RMS(chunk) >= s.cfg.RMSThreshold {
					hadSpeech = true
				}
			default:
				break drain
			}
		}
		flush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			finalFlush()
			return
		case <-s.done:
			finalFlush()
			return
		case chunk := <-s.audioCh:
			handle(chunk)
		}
	}
}
