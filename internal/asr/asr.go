// Package asr defines the speech-recognition adapter interface used by
// the turn pipeline, and provides a mock, an HTTP-batch, and a local
// sherpa-onnx streaming implementation.
//
// Grounded on original_source/core/asr_adapter.py's BaseASR/MockASR/
// HTTPASR/SherpaASR hierarchy.
package asr

import "context"

// Client is a streaming ASR session adapter. A new Client is created per
// call session and driven through one utterance at a time: Start,
// repeated PushAudio, optional Partial polling, OnSpeechEnd, Final, Stop.
type Client interface {
	// Start begins a new recognition stream, resetting any prior state.
	Start(ctx context.Context) error

	// PushAudio feeds one chunk of PCM16 mono audio at the client's
	// configured sample rate.
	PushAudio(ctx context.Context, pcm16 []byte) error

	// Partial returns the current in-progress transcript, or "" if
	// there is no update (streaming engines only; batch engines
	// always return "").
	Partial(ctx context.Context) (string, error)

	// OnSpeechEnd is an optional hook invoked when VAD reports the
	// utterance has ended, giving a streaming decoder a chance to
	// flush tail tokens before Final is called. No-op for batch
	// engines.
	OnSpeechEnd(ctx context.Context) error

	// Final returns the finished transcript for the current
	// utterance, or "" if nothing was recognized.
	Final(ctx context.Context) (string, error)

	// Stop releases the current stream. The Client remains reusable
	// for a subsequent Start.
	Stop(ctx context.Context) error
}

// SampleRate is the mono PCM16 sample rate every Client implementation
// in this package expects on PushAudio.
const SampleRate = 16000
