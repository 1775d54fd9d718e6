package tts

import "context"

// MockClient returns no audio, matching tts_manager.py's "mock" provider
// type (a configured no-op used when no real TTS backend is wired).
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Synthesize(ctx context.Context, text, voiceID string) (*Result, error) {
	return &Result{}, nil
}

func (m *MockClient) SynthesizeStream(ctx context.Context, text, voiceID string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte)
	errc := make(chan error, 1)
	close(chunks)
	close(errc)
	return chunks, errc
}

var _ Client = (*MockClient)(nil)
