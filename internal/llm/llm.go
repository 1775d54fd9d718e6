// Package llm defines the streaming chat-completion adapter interface
// and its backends (Ollama, OpenAI-completions, Anthropic, and an
// openai-agents-go-based agent backend), plus the `;`-separated
// model-name preference resolution used to pick a configured model name.
//
// Grounded on teacher internal/pipeline/llm*.go and
// original_source/core/llm_adapter.py.
package llm

import "context"

// TokenCallback is invoked for each streamed token.
type TokenCallback func(token string)

// Result holds a complete chat response with timing.
type Result struct {
	Text               string
	Thinking           string
	LatencyMs          float64
	TimeToFirstTokenMs float64
}

// ChatClient produces a streaming chat completion from a user message,
// an optional RAG context block, a system prompt, and a model name.
type ChatClient interface {
	Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error)
}

