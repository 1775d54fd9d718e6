package llm

import (
	"context"

	"github.com/hubenschmidt/voice-call-gateway/internal/routing"
)

// Router dispatches Chat calls to the configured engine backend, first
// resolving a `;`-separated model preference list against the set of
// model names configured across all backends.
type Router struct {
	*routing.Router[ChatClient]
	models     map[string]string
	modelOrder []string
}

// NewRouter builds a router over the given engine backends. models maps
// every model name configured on any backend to itself (e.g. the
// "ollama" backend's default model, "replyer", and the "anthropic"
// backend's "claude-sonnet-4-5") so ResolvePreference can match
// against it; modelOrder fixes the iteration order substring matching
// uses, mirroring llm_adapter.py's dict-insertion-order traversal.
func NewRouter(backends map[string]ChatClient, fallback string, models map[string]string, modelOrder []string) *Router {
	return &Router{
		Router:     routing.NewRouter(backends, fallback),
		models:     models,
		modelOrder: modelOrder,
	}
}

func (r *Router) Chat(ctx context.Context, userMessage, ragContext, systemPrompt, model, engine string, onToken TokenCallback) (*Result, error) {
	backend, err := r.Route(engine)
	if err != nil {
		return nil, err
	}
	resolved := model
	if name, ok := ResolvePreference(model, r.models, r.modelOrder); ok {
		resolved = name
	}
	return backend.Chat(ctx, userMessage, ragContext, systemPrompt, resolved, onToken)
}
