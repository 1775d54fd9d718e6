package asr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMockClientReturnsCannedFinal(t *testing.T) {
	ctx := context.Background()
	c := NewMockClient("hello world")
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	final, err := c.Final(ctx)
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if final != "hello world" {
		t.Fatalf("Final() = %q, want %q", final, "hello world")
	}
}

func TestHTTPBatchClientPostsOnFinal(t *testing.T) {
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"recognized text"}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewHTTPBatchClient(srv.URL, srv.Client())
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := c.PushAudio(ctx, make([]byte, 3200)); err != nil {
		t.Fatalf("PushAudio: %v", err)
	}
	final, err := c.Final(ctx)
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if final != "recognized text" {
		t.Fatalf("Final() = %q, want %q", final, "recognized text")
	}
	if gotContentType == "" {
		t.Fatal("expected multipart content type to be set")
	}
}

func TestHTTPBatchClientEmptyBufferSkipsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewHTTPBatchClient(srv.URL, srv.Client())
	c.Start(ctx)
	final, err := c.Final(ctx)
	if err != nil {
		t.Fatalf("Final: %v", err)
	}
	if final != "" {
		t.Fatalf("Final() = %q, want empty", final)
	}
	if called {
		t.Fatal("expected no HTTP request for empty audio buffer")
	}
}

func TestModelConfigKeyDeterministicByFields(t *testing.T) {
	a := ModelConfig{ModelKind: ModelKindTransducer, TokensPath: "t", EncoderPath: "e", DecoderPath: "d", JoinerPath: "j", NumThreads: 1, Provider: "cpu", SampleRate: 16000}
	b := a
	if a.key() != b.key() {
		t.Fatal("expected identical configs to produce identical keys")
	}
	b.EncoderPath = "different"
	if a.key() == b.key() {
		t.Fatal("expected differing encoder path to change the cache key")
	}
}

func TestRouterFallsBackToDefault(t *testing.T) {
	r := NewRouter("mock", map[string]Factory{
		"mock": func() (Client, error) { return NewMockClient("x"), nil },
	})
	c, err := r.New("unknown_engine")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Fatalf("expected fallback to mock client, got %T", c)
	}
}
