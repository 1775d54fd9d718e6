package asr

import "context"

// MockClient is a fixed-response stand-in for tests and environments
// without a live ASR engine. Grounded on asr_adapter.py's MockASR.
type MockClient struct {
	FinalText string
}

// NewMockClient creates a MockClient with the given canned final
// transcript.
func NewMockClient(finalText string) *MockClient {
	if finalText == "" {
		finalText = "mock transcript"
	}
	return &MockClient{FinalText: finalText}
}

func (m *MockClient) Start(ctx context.Context) error                   { return nil }
func (m *MockClient) PushAudio(ctx context.Context, pcm16 []byte) error  { return nil }
func (m *MockClient) Partial(ctx context.Context) (string, error)       { return "", nil }
func (m *MockClient) OnSpeechEnd(ctx context.Context) error              { return nil }
func (m *MockClient) Final(ctx context.Context) (string, error)         { return m.FinalText, nil }
func (m *MockClient) Stop(ctx context.Context) error                    { return nil }

var _ Client = (*MockClient)(nil)
