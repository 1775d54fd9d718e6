// Package tts defines the text-to-speech adapter interface and its
// implementations: a mock, a generic HTTP JSON client (Piper-style), an
// HTTP GET/query-param streaming client (SoVITS-style), and a Volcengine/
// Doubao bidirectional-websocket streaming client.
//
// Grounded on original_source/core/tts_manager.py's TTSManager (both its
// "sovits" and "doubao_ws" provider types) and teacher
// internal/pipeline/tts.go's Piper client.
package tts

import "context"

// Result holds one synthesis call's audio and latency.
type Result struct {
	Audio     []byte
	LatencyMs float64
}

// Client synthesizes speech for one piece of text, associated with a
// chunk sequence id from internal/chunker so callers can reorder/discard
// stale audio after a barge-in.
type Client interface {
	// Synthesize returns the complete audio for text in one call.
	Synthesize(ctx context.Context, text, voiceID string) (*Result, error)

	// SynthesizeStream returns audio as it becomes available. Streaming
	// engines (doubao_ws) emit multiple chunks; batch engines emit one
	// chunk containing the full Synthesize result. The returned channel
	// is closed when synthesis finishes or ctx is cancelled; a non-nil
	// error is sent as the final value via the err channel.
	SynthesizeStream(ctx context.Context, text, voiceID string) (<-chan []byte, <-chan error)
}
