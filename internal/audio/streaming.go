package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// IsWAV reports whether payload begins with a RIFF/WAVE container header.
func IsWAV(payload []byte) bool {
	return len(payload) >= 12 &&
		string(payload[0:4]) == "RIFF" &&
		string(payload[8:12]) == "WAVE"
}

// SampleRateFromWAV reads the sample rate out of a WAV header's fmt chunk
// (bytes 24-27, little-endian), the canonical 44-byte-header layout this
// package always produces. Returns 0 if payload is not a recognizable WAV
// header.
func SampleRateFromWAV(payload []byte) int {
	if !IsWAV(payload) || len(payload) < 28 {
		return 0
	}
	rate := binary.LittleEndian.Uint32(payload[24:28])
	if rate == 0 {
		return 0
	}
	return int(rate)
}

// StripEmptyWAVHeaderPrefix detects a header-only RIFF frame — one where
// riff_size==36 and data_size==0, meaning the 44-byte header was emitted
// with no audio data — and strips it so any bytes appended after it by
// transport-level chunk concatenation can be treated as raw PCM16.
// Returns the (possibly unchanged) payload and whether a strip happened.
func StripEmptyWAVHeaderPrefix(payload []byte) ([]byte, bool) {
	if !IsWAV(payload) || len(payload) < 44 {
		return payload, false
	}
	riffSize := binary.LittleEndian.Uint32(payload[4:8])
	dataSize := binary.LittleEndian.Uint32(payload[40:44])
	if riffSize == 36 && dataSize == 0 {
		return payload[44:], true
	}
	return payload, false
}

// ToPlayableWAVChunk normalizes a streamed TTS chunk so that each outbound
// payload is independently playable WAV: a chunk that is already WAV
// passes through, a header-only chunk is stripped and its trailer treated
// as PCM16, and raw PCM16 is wrapped into a WAV header. carry holds an odd
// trailing byte from a previous call so two-byte PCM16 samples are never
// split across chunk boundaries; it must be threaded through consecutive
// calls for the same stream.
func ToPlayableWAVChunk(chunk []byte, sampleRate, channels int, carry []byte) (out []byte, nextCarry []byte) {
	if len(chunk) == 0 {
		return nil, carry
	}

	normalized, stripped := StripEmptyWAVHeaderPrefix(chunk)
	if stripped {
		chunk = normalized
		if len(chunk) == 0 {
			return nil, nil
		}
	} else if IsWAV(chunk) {
		return chunk, nil
	}

	pcm := append(append([]byte{}, carry...), chunk...)
	if len(pcm) < 2 {
		return nil, pcm
	}

	var next []byte
	if len(pcm)%2 == 1 {
		next = pcm[len(pcm)-1:]
		pcm = pcm[:len(pcm)-1]
	}
	if len(pcm) == 0 {
		return nil, next
	}

	return pcm16BytesToWAV(pcm, sampleRate, channels), next
}

func pcm16BytesToWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	dataLen := len(pcm)
	totalLen := 44 + dataLen
	buf := make([]byte, totalLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(totalLen-8))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1)
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	copy(buf[44:], pcm)
	return buf
}

// EncodeBase64 is the WS JSON-frame boundary codec for embedding binary
// audio inside a text frame.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 is the inverse of EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
