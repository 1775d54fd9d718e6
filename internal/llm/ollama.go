package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/httpx"
	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
)

// OllamaClient streams chat completions from Ollama.
// Ported from teacher internal/pipeline/llm.go's OllamaLLMClient.
type OllamaClient struct {
	url          string
	model        string
	systemPrompt string
	maxTokens    int
	client       *http.Client
}

func NewOllamaClient(url, model, systemPrompt string, maxTokens, poolSize int) *OllamaClient {
	return &OllamaClient{
		url:          url,
		model:        model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
		client:       httpx.NewPooledClient(poolSize, 60*time.Second),
	}
}

func (c *OllamaClient) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	start := time.Now()

	resp, err := c.postChatRequest(ctx, userMessage, ragContext, systemPrompt, model)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("llm", "status").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, body)
	}

	var sr struct {
		text     string
		thinking string
		ttft     time.Time
	}
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var chunk struct {
			Message struct {
				Content  string `json:"content"`
				Thinking string `json:"thinking"`
			} `json:"message"`
			Done bool `json:"done"`
		}
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			break
		}
		if chunk.Message.Thinking != "" {
			sr.thinking += chunk.Message.Thinking
			continue
		}
		if chunk.Message.Content == "" {
			continue
		}
		if sr.ttft.IsZero() {
			sr.ttft = time.Now()
		}
		if onToken != nil {
			onToken(chunk.Message.Content)
		}
		sr.text += chunk.Message.Content
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("llm").Observe(latency.Seconds())

	ttft := float64(0)
	if !sr.ttft.IsZero() {
		ttft = float64(sr.ttft.Sub(start).Milliseconds())
	}

	return &Result{
		Text:               sr.text,
		Thinking:           sr.thinking,
		LatencyMs:          float64(latency.Milliseconds()),
		TimeToFirstTokenMs: ttft,
	}, nil
}

func (c *OllamaClient) postChatRequest(ctx context.Context, userMessage, ragContext, systemPrompt, model string) (*http.Response, error) {
	sysPrompt := c.systemPrompt
	if systemPrompt != "" {
		sysPrompt = systemPrompt
	}
	useModel := c.model
	if model != "" {
		useModel = model
	}

	messages := []map[string]string{{"role": "system", "content": sysPrompt}}
	if ragContext != "" {
		messages = append(messages, map[string]string{"role": "system", "content": "Relevant context from knowledge base:\n" + ragContext})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userMessage})

	body, err := json.Marshal(map[string]any{
		"model":    useModel,
		"stream":   true,
		"messages": messages,
		"options":  map[string]any{"num_predict": c.maxTokens},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("llm", "http").Inc()
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	return resp, nil
}

var _ ChatClient = (*OllamaClient)(nil)
