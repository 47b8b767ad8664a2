package audio

import (
	"encoding/binary"
	"errors"
)

// WAVInfo is the result of [ParseWAV].
type WAVInfo struct {
	Format Format

	// BitsPerSample from the fmt chunk. Only 16 is supported for playback.
	BitsPerSample int

	// Data is the PCM payload of the data chunk.
	Data []byte
}

// EncodeWAV wraps 16-bit PCM in a canonical 44-byte RIFF/WAVE header.
func EncodeWAV(pcm []byte, f Format) []byte {
	channels := max(f.Channels, 1)
	const bps = 16
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(f.SampleRate*channels*bps/8))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*bps/8))
	binary.LittleEndian.PutUint16(buf[34:36], bps)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of wav and returns the fmt parameters and
// the data chunk. A data chunk that claims more bytes than are present is
// truncated to what is available, which is what streaming servers send.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: WAV too short to be a RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: WAV missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: WAV missing WAVE identifier")
	}

	info := WAVInfo{Format: Format{SampleRate: 22050, Channels: 1}, BitsPerSample: 16}

	offset := 12
	for offset+8 <= len(wav) {
		id := string(wav[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch id {
		case "fmt ":
			if size >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Format.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.Format.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			}
		case "data":
			start := offset + 8
			end := start + size
			if end > len(wav) || size == 0 {
				end = len(wav)
			}
			info.Data = wav[start:end]
			if info.BitsPerSample != 16 {
				return info, errors.New("audio: only 16-bit PCM WAV is supported")
			}
			return info, nil
		}

		// Chunks are word-aligned.
		offset += 8 + size
		if size%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV missing data chunk")
}
