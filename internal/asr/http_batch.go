package asr

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/audio"
	"github.com/hubenschmidt/voice-call-gateway/internal/metrics"
)

// HTTPBatchClient buffers PCM16 audio for one utterance and POSTs it as
// a multipart WAV file on Final, matching a generic OpenAI/FunASR/
// whisper.cpp-server style transcription endpoint.
//
// Grounded on asr_adapter.py's HTTPASR and teacher internal/pipeline/asr.go.
type HTTPBatchClient struct {
	url    string
	client *http.Client
	buf    bytes.Buffer
}

// NewHTTPBatchClient creates a client against a transcription endpoint
// that accepts a multipart "file" field and replies with {"text": "..."}.
func NewHTTPBatchClient(url string, httpClient *http.Client) *HTTPBatchClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPBatchClient{url: url, client: httpClient}
}

func (c *HTTPBatchClient) Start(ctx context.Context) error {
	c.buf.Reset()
	return nil
}

func (c *HTTPBatchClient) PushAudio(ctx context.Context, pcm16 []byte) error {
	c.buf.Write(pcm16)
	return nil
}

func (c *HTTPBatchClient) Partial(ctx context.Context) (string, error) {
	// HTTP batch endpoints generally have no mid-utterance result.
	return "", nil
}

func (c *HTTPBatchClient) OnSpeechEnd(ctx context.Context) error { return nil }

func (c *HTTPBatchClient) Final(ctx context.Context) (string, error) {
	if c.buf.Len() == 0 {
		return "", nil
	}
	defer c.buf.Reset()

	start := time.Now()
	body, contentType, err := c.buildMultipart()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("asr: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.Errors.WithLabelValues("asr", "http").Inc()
		return "", fmt.Errorf("asr: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		metrics.Errors.WithLabelValues("asr", "status").Inc()
		return "", fmt.Errorf("asr: status %d: %s", resp.StatusCode, string(respBody))
	}

	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("asr: decode response: %w", err)
	}

	metrics.StageDuration.WithLabelValues("asr").Observe(time.Since(start).Seconds())
	return decoded.Text, nil
}

func (c *HTTPBatchClient) Stop(ctx context.Context) error {
	c.buf.Reset()
	return nil
}

func (c *HTTPBatchClient) buildMultipart() (*bytes.Buffer, string, error) {
	wavData := pcm16ToWAV(c.buf.Bytes(), SampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("asr: create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("asr: write wav data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("asr: close writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

func pcm16ToWAV(pcm []byte, sampleRate int) []byte {
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
		samples[i] = float32(v) / 32768.0
	}
	return audio.SamplesToWAV(samples, sampleRate)
}

var _ Client = (*HTTPBatchClient)(nil)
