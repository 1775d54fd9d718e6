package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
)

// RequestStyle selects how HTTPClient talks to its backend.
type RequestStyle string

const (
	// StyleJSONPost POSTs {"text","voice"} JSON and reads the whole
	// response body as audio. Matches teacher's Piper client.
	StyleJSONPost RequestStyle = "json_post"
	// StyleQueryStream GETs with query parameters and streams the
	// chunked response body. Matches tts_manager.py's SoVITS provider.
	StyleQueryStream RequestStyle = "query_stream"
)

// HTTPClientConfig configures HTTPClient.
type HTTPClientConfig struct {
	Style      RequestStyle
	BaseURL    string // e.g. http://127.0.0.1:9880
	Path       string // e.g. /synthesize or /tts
	VoiceModels map[string]string // engine name -> voice/model id, StyleJSONPost only
	DefaultVoiceKey string
	// SoVITS-style static query params (text_lang, prompt_text, ...).
	StaticQueryParams map[string]string
	StreamChunkSize   int
}

// HTTPClient is a batch/streaming HTTP TTS client.
type HTTPClient struct {
	cfg    HTTPClientConfig
	client *http.Client
}

// NewHTTPClient creates an HTTPClient with the given pooled http.Client.
func NewHTTPClient(cfg HTTPClientConfig, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.StreamChunkSize < 1024 {
		cfg.StreamChunkSize = 8192
	}
	return &HTTPClient{cfg: cfg, client: httpClient}
}

func (c *HTTPClient) resolveVoice(voiceID string) string {
	if voiceID != "" {
		return voiceID
	}
	if v, ok := c.cfg.VoiceModels[c.cfg.DefaultVoiceKey]; ok {
		return v
	}
	return c.cfg.DefaultVoiceKey
}

func (c *HTTPClient) Synthesize(ctx context.Context, text, voiceID string) (*Result, error) {
	start := time.Now()

	var (
		audio []byte
		err   error
	)
	switch c.cfg.Style {
	case StyleQueryStream:
		audio, err = c.synthesizeQuery(ctx, text, false)
	default:
		audio, err = c.synthesizeJSON(ctx, text, voiceID)
	}
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	metrics.StageDuration.WithLabelValues("tts").Observe(latency.Seconds())
	return &Result{Audio: audio, LatencyMs: float64(latency.Milliseconds())}, nil
}

func (c *HTTPClient) synthesizeJSON(ctx context.Context, text, voiceID string) ([]byte, error) {
	voice := c.resolveVoice(voiceID)
	body, err := json.Marshal(struct {
		Text  string `json:"text"`
		Voice string `json:"voice"`
	}{Text: text, Voice: voice})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.cfg.BaseURL, "/")+c.cfg.Path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("tts: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) buildQueryURL(text string, streaming bool) string {
	q := url.Values{}
	for k, v := range c.cfg.StaticQueryParams {
		q.Set(k, v)
	}
	q.Set("text", text)
	q.Set("streaming_mode", fmt.Sprint(streaming))
	q.Set("media_type", "wav")
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.Path + "?" + q.Encode()
}

func (c *HTTPClient) synthesizeQuery(ctx context.Context, text string, streaming bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildQueryURL(text, streaming), nil)
	if err != nil {
		return nil, fmt.Errorf("tts: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("tts", "http").Inc()
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("tts", "status").Inc()
		return nil, fmt.Errorf("tts: status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (c *HTTPClient) SynthesizeStream(ctx context.Context, text, voiceID string) (<-chan []byte, <-chan error) {
	chunks := make(chan []byte, 4)
	errc := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errc)

		if c.cfg.Style != StyleQueryStream {
			res, err := c.Synthesize(ctx, text, voiceID)
			if err != nil {
				errc <- err
				return
			}
			select {
			case chunks <- res.Audio:
			case <-ctx.Done():
			}
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildQueryURL(text, true), nil)
		if err != nil {
			errc <- fmt.Errorf("tts: create request: %w", err)
			return
		}
		resp, err := c.client.Do(req)
		if err != nil {
			metrics.Errors.WithLabelValues("tts", "http").Inc()
			errc <- fmt.Errorf("tts: request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			metrics.Errors.WithLabelValues("tts", "status").Inc()
			errc <- fmt.Errorf("tts: status %d: %s", resp.StatusCode, string(body))
			return
		}

		buf := make([]byte, c.cfg.StreamChunkSize)
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if readErr == io.EOF {
				return
			}
			if readErr != nil {
				errc <- fmt.Errorf("tts: stream read: %w", readErr)
				return
			}
		}
	}()

	return chunks, errc
}

var _ Client = (*HTTPClient)(nil)
