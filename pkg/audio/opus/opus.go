// Package opus encodes synthesized speech to Opus and decodes Opus
// microphone audio for websocket clients that negotiate the "opus" codec.
//
// Both directions use 20 ms frames. The encoder buffers partial frames
// between calls so callers may feed arbitrarily sized PCM chunks.
package opus

import (
	"fmt"

	"layeh.com/gopus"

	"github.com/MrWong99/facetalk/pkg/audio"
)

// FrameDuration is the Opus frame length in milliseconds.
const FrameDuration = 20

// maxPacket bounds the size of a single encoded packet.
const maxPacket = 4000

// Encoder turns 16-bit PCM into Opus packets.
type Encoder struct {
	enc       *gopus.Encoder
	format    audio.Format
	frameSize int
	pending   []byte
}

// NewEncoder creates an encoder for f. Opus supports 8, 12, 16, 24 and 48 kHz.
func NewEncoder(f audio.Format) (*Encoder, error) {
	ch := max(f.Channels, 1)
	enc, err := gopus.NewEncoder(f.SampleRate, ch, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &Encoder{
		enc:       enc,
		format:    audio.Format{SampleRate: f.SampleRate, Channels: ch},
		frameSize: f.SampleRate * FrameDuration / 1000,
	}, nil
}

// Format returns the PCM format the encoder expects.
func (e *Encoder) Format() audio.Format { return e.format }

// Encode appends pcm to the pending buffer and returns one packet for every
// complete frame. Leftover samples stay buffered until the next call or Flush.
func (e *Encoder) Encode(pcm []byte) ([][]byte, error) {
	e.pending = append(e.pending, pcm...)
	frameBytes := e.frameSize * e.format.Channels * 2

	var packets [][]byte
	for len(e.pending) >= frameBytes {
		pkt, err := e.enc.Encode(audio.Int16s(e.pending[:frameBytes]), e.frameSize, maxPacket)
		if err != nil {
			return packets, fmt.Errorf("opus: encode: %w", err)
		}
		packets = append(packets, pkt)
		e.pending = e.pending[frameBytes:]
	}
	if len(e.pending) == 0 {
		e.pending = nil
	}
	return packets, nil
}

// Flush pads any buffered samples with silence to a full frame and encodes it.
// Returns nil when nothing is pending.
func (e *Encoder) Flush() ([]byte, error) {
	if len(e.pending) == 0 {
		return nil, nil
	}
	frameBytes := e.frameSize * e.format.Channels * 2
	buf := make([]byte, frameBytes)
	copy(buf, e.pending)
	e.pending = nil
	pkt, err := e.enc.Encode(audio.Int16s(buf), e.frameSize, maxPacket)
	if err != nil {
		return nil, fmt.Errorf("opus: encode: %w", err)
	}
	return pkt, nil
}

// Decoder turns Opus packets into 16-bit PCM.
type Decoder struct {
	dec       *gopus.Decoder
	format    audio.Format
	frameSize int
}

// NewDecoder creates a decoder producing PCM in format f.
func NewDecoder(f audio.Format) (*Decoder, error) {
	ch := max(f.Channels, 1)
	dec, err := gopus.NewDecoder(f.SampleRate, ch)
	if err != nil {
		return nil, fmt.Errorf("opus: create decoder: %w", err)
	}
	return &Decoder{
		dec:       dec,
		format:    audio.Format{SampleRate: f.SampleRate, Channels: ch},
		frameSize: f.SampleRate * FrameDuration / 1000,
	}, nil
}

// Format returns the PCM format the decoder produces.
func (d *Decoder) Format() audio.Format { return d.format }

// Decode decodes one Opus packet.
func (d *Decoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, d.frameSize, false)
	if err != nil {
		return nil, fmt.Errorf("opus: decode: %w", err)
	}
	return audio.Bytes(pcm), nil
}
