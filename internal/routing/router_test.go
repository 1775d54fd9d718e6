package routing

import "testing"

func TestRouteExactAndFallback(t *testing.T) {
	r := NewRouter(map[string]string{"a": "A", "b": "B"}, "a")

	got, err := r.Route("b")
	if err != nil || got != "B" {
		t.Fatalf("Route(b) = (%q, %v), want (B, nil)", got, err)
	}

	got, err = r.Route("missing")
	if err != nil || got != "A" {
		t.Fatalf("Route(missing) = (%q, %v), want fallback (A, nil)", got, err)
	}
}

func TestRouteErrorsWithoutFallback(t *testing.T) {
	r := NewRouter(map[string]string{"a": "A"}, "")
	if _, err := r.Route("missing"); err == nil {
		t.Fatal("expected error when neither exact nor fallback backend exists")
	}
}

func TestHasAndEngines(t *testing.T) {
	r := NewRouter(map[string]string{"a": "A", "b": "B"}, "a")
	if !r.Has("a") || r.Has("z") {
		t.Fatal("Has() mismatch")
	}
	if len(r.Engines()) != 2 {
		t.Fatalf("Engines() len = %d, want 2", len(r.Engines()))
	}
}
