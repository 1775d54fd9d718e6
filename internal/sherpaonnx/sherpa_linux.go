//go:build linux

// Package sherpaonnx re-exports the platform-specific sherpa-onnx-go
// online (streaming) recognizer bindings under one import path, the way
// agalue-sherpa-voice-assistant/internal/sherpa does for the offline
// recognizer.
package sherpaonnx

import (
	impl "github.com/k2-fsa/sherpa-onnx-go-linux"
)

type OnlineRecognizer = impl.OnlineRecognizer
type OnlineRecognizerConfig = impl.OnlineRecognizerConfig
type OnlineStream = impl.OnlineStream
type OnlineRecognizerResult = impl.OnlineRecognizerResult

var NewOnlineRecognizer = impl.NewOnlineRecognizer
var DeleteOnlineRecognizer = impl.DeleteOnlineRecognizer
var DeleteOnlineStream = impl.DeleteOnlineStream
