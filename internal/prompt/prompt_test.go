package prompt

import (
	"strings"
	"testing"

	"github.com/hubenschmidt/voice-call-gateway/internal/session"
)

func TestBuildSystemPromptDefaultWhenNoBotName(t *testing.T) {
	got := BuildSystemPrompt(Personality{})
	if got != DefaultSystem+"\n"+hardOutputRules {
		t.Fatalf("got %q, want default system prompt plus output rules", got)
	}
}

func TestBuildSystemPromptIncludesIdentityAndRules(t *testing.T) {
	got := BuildSystemPrompt(Personality{
		BotName:    "Nova",
		AliasNames: []string{"Nia"},
		Base:       "are cheerful and direct",
		ReplyStyle: "warm and brief",
		PlanStyle:  "never give medical advice",
	})

	for _, want := range []string{"Nova", "Nia", "cheerful and direct", "warm and brief", "never give medical advice", "<emo:neutral|happy|sad|angry|shy|surprised>"} {
		if !strings.Contains(got, want) {
			t.Errorf("system prompt missing %q: %s", want, got)
		}
	}
}

func TestBuildTurnPromptOrdersInjectionHistoryThenInput(t *testing.T) {
	history := []session.Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	got := BuildTurnPrompt("[INTERNAL REFERENCE]\nguess", history, 10, "what's the weather")

	injIdx := strings.Index(got, "[INTERNAL REFERENCE]")
	histIdx := strings.Index(got, "User: hi")
	inputIdx := strings.Index(got, "what's the weather")
	if injIdx < 0 || histIdx < 0 || inputIdx < 0 || !(injIdx < histIdx && histIdx < inputIdx) {
		t.Fatalf("expected injection < history < input ordering, got: %s", got)
	}
}

func TestBuildTurnPromptTrimsHistoryToMaxTurns(t *testing.T) {
	history := []session.Turn{
		{Role: "user", Content: "first"},
		{Role: "user", Content: "second"},
	}
	got := BuildTurnPrompt("", history, 1, "third")
	if strings.Contains(got, "first") {
		t.Fatalf("expected oldest turn trimmed, got: %s", got)
	}
	if !strings.Contains(got, "second") {
		t.Fatalf("expected retained turn present, got: %s", got)
	}
}

func TestSanitizePrethinkResultStripsFencesAndBullets(t *testing.T) {
	raw := "```\nignored\n```\n- Maybe they'll ask about pricing\n* Or about delivery time\n"
	got := SanitizePrethinkResult(raw, 200)
	if strings.Contains(got, "```") || strings.Contains(got, "ignored") {
		t.Fatalf("expected code fence stripped, got: %q", got)
	}
	if strings.HasPrefix(got, "-") || strings.HasPrefix(got, "*") {
		t.Fatalf("expected leading bullet stripped, got: %q", got)
	}
}

func TestSanitizePrethinkResultCapsAtThreeLines(t *testing.T) {
	raw := "one thing\ntwo thing\nthree thing\nfour thing"
	got := SanitizePrethinkResult(raw, 200)
	if strings.Count(got, "\n") != 2 {
		t.Fatalf("expected exactly 3 lines, got: %q", got)
	}
}

func TestSanitizePrethinkResultEmptyInput(t *testing.T) {
	if got := SanitizePrethinkResult("", 200); got != "" {
		t.Fatalf("expected empty output for empty input, got %q", got)
	}
	if got := SanitizePrethinkResult("```\n```", 200); got != "" {
		t.Fatalf("expected empty output for fence-only input, got %q", got)
	}
}

func TestBuildPrethinkInjectionBlockEmptyHintReturnsEmpty(t *testing.T) {
	if got := BuildPrethinkInjectionBlock("   "); got != "" {
		t.Fatalf("expected empty block for blank hint, got %q", got)
	}
}

func TestBuildPrethinkInjectionBlockWrapsHint(t *testing.T) {
	got := BuildPrethinkInjectionBlock("maybe pricing")
	if !strings.Contains(got, "maybe pricing") || !strings.Contains(got, "internal") {
		t.Fatalf("expected hint wrapped with internal-only label, got: %s", got)
	}
}

func TestRAGContextEmptyReturnsEmpty(t *testing.T) {
	if got := RAGContext(""); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
