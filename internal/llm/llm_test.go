package llm

import (
	"context"
	"testing"
)

func TestResolvePreferenceExactMatch(t *testing.T) {
	available := map[string]string{"ollama": "x", "anthropic": "y"}
	order := []string{"ollama", "anthropic"}

	key, ok := ResolvePreference("anthropic;ollama", available, order)
	if !ok || key != "anthropic" {
		t.Fatalf("got key=%q ok=%v, want anthropic/true", key, ok)
	}
}

func TestResolvePreferenceSubstringFallback(t *testing.T) {
	available := map[string]string{"gpt-4o-mini": "x"}
	order := []string{"gpt-4o-mini"}

	key, ok := ResolvePreference("gpt-4o", available, order)
	if !ok || key != "gpt-4o-mini" {
		t.Fatalf("got key=%q ok=%v, want gpt-4o-mini/true", key, ok)
	}
}

func TestResolvePreferenceSkipsUnmatchedCandidates(t *testing.T) {
	available := map[string]string{"replyer": "x"}
	order := []string{"replyer"}

	key, ok := ResolvePreference("unknown-a;unknown-b", available, order)
	if !ok || key != "replyer" {
		t.Fatalf("got key=%q ok=%v, want replyer/true (fallback)", key, ok)
	}
}

func TestResolvePreferenceFirstAvailableFallback(t *testing.T) {
	available := map[string]string{"ollama": "x"}
	order := []string{"ollama"}

	key, ok := ResolvePreference("unknown", available, order)
	if !ok || key != "ollama" {
		t.Fatalf("got key=%q ok=%v, want ollama/true (first-available fallback)", key, ok)
	}
}

func TestResolvePreferenceNoneAvailable(t *testing.T) {
	_, ok := ResolvePreference("anything", map[string]string{}, nil)
	if ok {
		t.Fatal("expected ok=false with no available backends")
	}
}

func TestResolvePreferenceBlankAndWhitespaceEntriesIgnored(t *testing.T) {
	available := map[string]string{"ollama": "x"}
	order := []string{"ollama"}

	key, ok := ResolvePreference(" ; ;ollama; ", available, order)
	if !ok || key != "ollama" {
		t.Fatalf("got key=%q ok=%v, want ollama/true", key, ok)
	}
}

func TestRouterDispatchesToNamedEngine(t *testing.T) {
	r := NewRouter(map[string]ChatClient{
		"mock-a": NewMockClient("alpha reply"),
		"mock-b": NewMockClient("beta reply"),
	}, "mock-a", nil, nil)

	var tokens string
	res, err := r.Chat(context.Background(), "hi", "", "system", "", "mock-b", func(tok string) {
		tokens += tok
	})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if res.Text != "beta reply" {
		t.Fatalf("got text %q, want %q", res.Text, "beta reply")
	}
	if tokens != "beta reply " {
		t.Fatalf("got streamed tokens %q, want %q", tokens, "beta reply ")
	}
}

func TestRouterFallsBackToDefaultEngine(t *testing.T) {
	r := NewRouter(map[string]ChatClient{
		"mock-a": NewMockClient("alpha reply"),
	}, "mock-a", nil, nil)

	res, err := r.Chat(context.Background(), "hi", "", "system", "", "unknown-engine", nil)
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if res.Text != "alpha reply" {
		t.Fatalf("got text %q, want %q", res.Text, "alpha reply")
	}
}

type modelRecordingClient struct {
	gotModel string
}

func (m *modelRecordingClient) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model string, onToken TokenCallback) (*Result, error) {
	m.gotModel = model
	return &Result{Text: "ok"}, nil
}

func TestRouterResolvesModelPreferenceBeforeDispatch(t *testing.T) {
	rec := &modelRecordingClient{}
	r := NewRouter(
		map[string]ChatClient{"ollama": rec},
		"ollama",
		map[string]string{"replyer": "replyer", "claude-sonnet-4-5": "claude-sonnet-4-5"},
		[]string{"replyer", "claude-sonnet-4-5"},
	)

	if _, err := r.Chat(context.Background(), "hi", "", "system", "utils.gemini;claude-sonnet-4-5", "ollama", nil); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if rec.gotModel != "claude-sonnet-4-5" {
		t.Fatalf("got resolved model %q, want claude-sonnet-4-5", rec.gotModel)
	}
}

func TestRouterErrorsWithUnknownEngineAndNoFallback(t *testing.T) {
	r := NewRouter(map[string]ChatClient{
		"mock-a": NewMockClient("alpha reply"),
	}, "", nil, nil)

	if _, err := r.Chat(context.Background(), "hi", "", "system", "", "unknown-engine", nil); err == nil {
		t.Fatal("expected error for unknown engine with no fallback configured")
	}
}
