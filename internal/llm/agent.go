package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentClient runs a single-turn openai-agents-go agent against a model
// provider, for backends that want tool-calling/tracing plumbing instead
// of a raw completions/messages HTTP call. Ported from teacher
// internal/pipeline/llm_agent.go's AgentLLM.
type AgentClient struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
}

func NewAgentClient(provider agents.ModelProvider, defaultModel string, maxTokens int) *AgentClient {
	return &AgentClient{provider: provider, model: defaultModel, maxTokens: maxTokens}
}

func (a *AgentClient) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	useModel := model
	if useModel == "" {
		useModel = a.model
	}

	instructions := systemPrompt
	if ragContext != "" {
		instructions += "\n\nRelevant context from knowledge base:\n" + ragContext
	}

	agent := agents.New("assistant").
		WithInstructions(instructions).
		WithModel(useModel).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(a.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	start := time.Now()

	events, errCh, err := runner.RunStreamedChan(ctx, agent, userMessage)
	if err != nil {
		return nil, fmt.Errorf("llm stream start: %w", err)
	}

	var textBuf strings.Builder
	var ttft time.Time
	for ev := range events {
		raw, ok := ev.(agents.RawResponsesStreamEvent)
		if !ok || raw.Data.Type != "response.output_text.delta" {
			continue
		}
		if ttft.IsZero() {
			ttft = time.Now()
		}
		if onToken != nil {
			onToken(raw.Data.Delta)
		}
		textBuf.WriteString(raw.Data.Delta)
	}

	if streamErr := <-errCh; streamErr != nil {
		return nil, fmt.Errorf("llm stream: %w", streamErr)
	}

	latency := time.Since(start)
	ttftMs := float64(0)
	if !ttft.IsZero() {
		ttftMs = float64(ttft.Sub(start).Milliseconds())
	}

	return &Result{
		Text:               textBuf.String(),
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttftMs,
	}, nil
}

var _ ChatClient = (*AgentClient)(nil)
