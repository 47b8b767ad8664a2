package audio_test

import (
	"bytes"
	"testing"

	"github.com/MrWong99/facetalk/pkg/audio"
)

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	pcm := audio.Bytes([]int16{1, -1, 2, -2, 3, -3})
	f := audio.Format{SampleRate: 22050, Channels: 1}
	wav := audio.EncodeWAV(pcm, f)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}

	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.Format != f {
		t.Errorf("format = %+v, want %+v", info.Format, f)
	}
	if !bytes.Equal(info.Data, pcm) {
		t.Errorf("data = %v, want %v", info.Data, pcm)
	}
}

func TestParseWAV_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []byte
	}{
		{name: "too short", in: []byte("RIFF")},
		{name: "no riff", in: []byte("JUNK\x00\x00\x00\x00WAVE")},
		{name: "no wave", in: []byte("RIFF\x00\x00\x00\x00JUNK")},
		{name: "no data chunk", in: []byte("RIFF\x00\x00\x00\x00WAVE")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := audio.ParseWAV(tc.in); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParseWAV_TruncatedData(t *testing.T) {
	t.Parallel()
	wav := audio.EncodeWAV(audio.Bytes([]int16{5, 6, 7, 8}), audio.Recognition)
	info, err := audio.ParseWAV(wav[:len(wav)-4])
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if len(info.Data) != 4 {
		t.Errorf("data length = %d, want 4", len(info.Data))
	}
}
