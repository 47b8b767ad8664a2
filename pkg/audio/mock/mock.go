// Package mock provides an in-memory [audio.Sink] for unit tests.
//
// Sink records every write so tests can assert which audio reached playback
// and in what format. It is safe for concurrent use.
//
//	sink := &mock.Sink{}
//	spk := speech.NewSpeaker(provider, sink)
//	...
//	if sink.Bytes() == 0 { t.Fatal("no audio played") }
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/facetalk/pkg/audio"
)

// Write records a single WritePCM call.
type Write struct {
	PCM    []byte
	Format audio.Format
}

// Sink is a mock implementation of [audio.Sink].
type Sink struct {
	mu sync.Mutex

	// Err, if non-nil, is returned by every WritePCM call.
	Err error

	// Writes holds every successful write in order.
	Writes []Write

	// OnWrite, if set, is called after each write is recorded, outside the lock.
	OnWrite func(Write)
}

// WritePCM records a copy of pcm.
func (s *Sink) WritePCM(_ context.Context, pcm []byte, f audio.Format) error {
	s.mu.Lock()
	if s.Err != nil {
		err := s.Err
		s.mu.Unlock()
		return err
	}
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	w := Write{PCM: cp, Format: f}
	s.Writes = append(s.Writes, w)
	hook := s.OnWrite
	s.mu.Unlock()
	if hook != nil {
		hook(w)
	}
	return nil
}

// Count returns the number of recorded writes.
func (s *Sink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Writes)
}

// Bytes returns the total number of PCM bytes written.
func (s *Sink) Bytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.Writes {
		n += len(w.PCM)
	}
	return n
}

// Reset clears recorded writes.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Writes = nil
}

var _ audio.Sink = (*Sink)(nil)
