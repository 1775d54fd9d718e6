// Package httpx provides the shared pooled HTTP client used by the ASR,
// TTS, and LLM HTTP adapters.
//
// Ported from teacher internal/pipeline/httpclient.go's NewPooledHTTPClient.
package httpx

import (
	"net/http"
	"time"
)

// NewPooledClient creates an http.Client tuned for many concurrent
// short-lived requests to one or a few backend hosts.
func NewPooledClient(poolSize int, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
