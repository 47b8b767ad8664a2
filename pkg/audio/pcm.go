package audio

import (
	"encoding/binary"
	"math"
)

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

func putSample(pcm []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(pcm[i*2:], uint16(s))
}

// RMS returns the root-mean-square amplitude of 16-bit PCM. Used for
// silence detection by buffering STT providers.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(sampleAt(pcm, i))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// Int16s converts little-endian bytes to int16 samples. A trailing odd byte
// is ignored.
func Int16s(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = sampleAt(b, i)
	}
	return out
}

// Bytes converts int16 samples to little-endian bytes.
func Bytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		putSample(b, i, s)
	}
	return b
}
