//go:build darwin

package sherpaonnx

import (
	impl "github.com/k2-fsa/sherpa-onnx-go-macos"
)

type OnlineRecognizer = impl.OnlineRecognizer
type OnlineRecognizerConfig = impl.OnlineRecognizerConfig
type OnlineStream = impl.OnlineStream
type OnlineRecognizerResult = impl.OnlineRecognizerResult

var NewOnlineRecognizer = impl.NewOnlineRecognizer
var DeleteOnlineRecognizer = impl.DeleteOnlineRecognizer
var DeleteOnlineStream = impl.DeleteOnlineStream
