package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/httpx"
	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
)

// AnthropicClient streams chat completions from the Anthropic Messages
// API. Ported from teacher internal/pipeline/llm_anthropic.go.
type AnthropicClient struct {
	apiKey    string
	url       string
	model     string
	maxTokens int
	client    *http.Client
}

func NewAnthropicClient(apiKey, url, model string, maxTokens, poolSize int) *AnthropicClient {
	return &AnthropicClient{
		apiKey:    apiKey,
		url:       url,
		model:     model,
		maxTokens: maxTokens,
		client:    httpx.NewPooledClient(poolSize, 120*time.Second),
	}
}

func (c *AnthropicClient) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	start := time.Now()

	useModel := c.model
	if model != "" {
		useModel = model
	}

	system := systemPrompt
	if ragContext != "" {
		system += "\n\nRelevant context from knowledge base:\n" + ragContext
	}

	body, err := json.Marshal(struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Stream    bool   `json:"stream"`
		System    string `json:"system,omitempty"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}{
		Model: useModel, MaxTokens: c.maxTokens, Stream: true, System: system,
		Messages: []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{{Role: "user", Content: userMessage}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("anthropic status %d: %s", resp.StatusCode, errBody)
	}

	text, thinking, ttft := consumeAnthropicStream(resp.Body, onToken)

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	ttftMs := float64(0)
	if !ttft.IsZero() {
		ttftMs = float64(ttft.Sub(start).Milliseconds())
	}

	return &Result{Text: text, Thinking: thinking, LatencyMs: float64(latency.Milliseconds()), TimeToFirstTokenMs: ttftMs}, nil
}

func consumeAnthropicStream(body io.Reader, onToken TokenCallback) (text, thinking string, ttft time.Time) {
	scanner := bufio.NewScanner(body)
	var eventType string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if eventType == "message_stop" {
			return text, thinking, ttft
		}
		if eventType != "content_block_delta" {
			continue
		}

		var delta struct {
			Delta struct {
				Type     string `json:"type"`
				Text     string `json:"text,omitempty"`
				Thinking string `json:"thinking,omitempty"`
			} `json:"delta"`
		}
		if json.Unmarshal([]byte(data), &delta) != nil {
			continue
		}
		if delta.Delta.Type == "thinking_delta" {
			thinking += delta.Delta.Thinking
			continue
		}
		piece := delta.Delta.Text
		if piece == "" {
			continue
		}
		if ttft.IsZero() {
			ttft = time.Now()
		}
		if onToken != nil {
			onToken(piece)
		}
		text += piece
	}
	return text, thinking, ttft
}

var _ ChatClient = (*AnthropicClient)(nil)
