package llm

import "context"

// MockClient streams a fixed response token-by-token, split on spaces,
// for tests and environments without a configured backend.
type MockClient struct {
	Response string
}

func NewMockClient(response string) *MockClient {
	return &MockClient{Response: response}
}

func (m *MockClient) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	if onToken != nil {
		start := 0
		for i := 0; i <= len(m.Response); i++ {
			if i == len(m.Response) || m.Response[i] == ' ' {
				if i > start {
					onToken(m.Response[start:i] + " ")
				}
				start = i + 1
			}
		}
	}
	return &Result{Text: m.Response}, nil
}

var _ ChatClient = (*MockClient)(nil)
