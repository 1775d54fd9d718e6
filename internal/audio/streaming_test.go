package audio

import (
	"bytes"
	"testing"
)

func TestIsWAVAndSampleRate(t *testing.T) {
	wav := pcm16BytesToWAV([]byte{1, 2, 3, 4}, 22050, 1)
	if !IsWAV(wav) {
		t.Fatal("expected generated buffer to be recognized as WAV")
	}
	if got := SampleRateFromWAV(wav); got != 22050 {
		t.Fatalf("expected sample rate 22050, got %d", got)
	}
	if SampleRateFromWAV([]byte("not a wav")) != 0 {
		t.Fatal("expected 0 for non-WAV payload")
	}
}

func TestStripEmptyWAVHeaderPrefix(t *testing.T) {
	headerOnly := pcm16BytesToWAV(nil, 24000, 1)
	stripped, ok := StripEmptyWAVHeaderPrefix(append(headerOnly, []byte{9, 9}...))
	if !ok {
		t.Fatal("expected header-only RIFF to be detected")
	}
	if !bytes.Equal(stripped, []byte{9, 9}) {
		t.Fatalf("expected trailing PCM bytes after strip, got %v", stripped)
	}

	full := pcm16BytesToWAV([]byte{1, 2, 3, 4}, 24000, 1)
	_, ok = StripEmptyWAVHeaderPrefix(full)
	if ok {
		t.Fatal("expected non-empty WAV to not be stripped")
	}
}

func TestToPlayableWAVChunkOddByteCarry(t *testing.T) {
	chunk1 := []byte{1, 2, 3} // odd length: one byte must carry
	out1, carry := ToPlayableWAVChunk(chunk1, 24000, 1, nil)
	if len(carry) != 1 || carry[0] != 3 {
		t.Fatalf("expected carry byte 3, got %v", carry)
	}
	if !IsWAV(out1) {
		t.Fatal("expected first chunk wrapped as WAV")
	}

	chunk2 := []byte{4, 5}
	out2, carry2 := ToPlayableWAVChunk(chunk2, 24000, 1, carry)
	// carry [3] + [4, 5] is three bytes again, so byte 5 carries over.
	if len(carry2) != 1 || carry2[0] != 5 {
		t.Fatalf("expected carry byte 5, got %v", carry2)
	}
	if !IsWAV(out2) {
		t.Fatal("expected second chunk wrapped as WAV")
	}
}

func TestToPlayableWAVChunkPassthroughWAV(t *testing.T) {
	wav := pcm16BytesToWAV([]byte{1, 2}, 16000, 1)
	out, carry := ToPlayableWAVChunk(wav, 16000, 1, nil)
	if !bytes.Equal(out, wav) {
		t.Fatal("expected already-WAV chunk to pass through unchanged")
	}
	if carry != nil {
		t.Fatal("expected no carry for passthrough WAV")
	}
}
