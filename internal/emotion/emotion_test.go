package emotion

import "testing"

func TestNormalizeExactAndAlias(t *testing.T) {
	if got := Normalize("Happy", "neutral"); got != "happy" {
		t.Fatalf("expected happy, got %s", got)
	}
	if got := Normalize("开心", "neutral"); got != "happy" {
		t.Fatalf("expected happy via alias, got %s", got)
	}
	if got := Normalize("unknown-thing", "neutral"); got != "neutral" {
		t.Fatalf("expected default fallback, got %s", got)
	}
	if got := Normalize("", "neutral"); got != "neutral" {
		t.Fatalf("expected default for empty, got %s", got)
	}
}

func TestStripLeadingTagBracketStyles(t *testing.T) {
	cases := []struct {
		in       string
		emo      string
		cleaned  string
	}{
		{"[emotion:happy] 你好", "happy", "你好"},
		{"<emo:sad> hello", "sad", "hello"},
		{"【情绪:开心】你好", "happy", "你好"},
		{"no tag here", "", "no tag here"},
	}
	for _, c := range cases {
		emo, cleaned := StripLeadingTag(c.in)
		if emo != c.emo || cleaned != c.cleaned {
			t.Fatalf("StripLeadingTag(%q) = (%q, %q), want (%q, %q)", c.in, emo, cleaned, c.emo, c.cleaned)
		}
	}
}

func TestResolveLeadingPrefixNeedsMore(t *testing.T) {
	state, _, _ := ResolveLeadingPrefix("<emo", 1)
	if state != StateNeedMore {
		t.Fatalf("expected need-more for incomplete tag, got %v", state)
	}

	state, emo, cleaned := ResolveLeadingPrefix("<emo:happy> hi", 1)
	if state != StateResolved || emo != "happy" || cleaned != "hi" {
		t.Fatalf("expected resolved happy/hi, got %v %q %q", state, emo, cleaned)
	}

	state, _, _ = ResolveLeadingPrefix("just plain text", 1)
	if state != StateNoTag {
		t.Fatalf("expected no-tag for plain text, got %v", state)
	}
}

func TestResolveLeadingPrefixGivesUpAfterCap(t *testing.T) {
	state, _, text := ResolveLeadingPrefix("<emotion", maxLeadingPrefixChunks)
	if state != StateNoTag {
		t.Fatalf("expected no-tag once chunk cap exceeded, got %v", state)
	}
	if text != "<emotion" {
		t.Fatalf("expected original text returned, got %q", text)
	}
}

func TestInferPicksHighestScoringEmotion(t *testing.T) {
	if got := Infer("哈哈哈太棒了!", "neutral"); got != "happy" {
		t.Fatalf("expected happy, got %s", got)
	}
	if got := Infer("呜呜呜好难过", "neutral"); got != "sad" {
		t.Fatalf("expected sad, got %s", got)
	}
	if got := Infer("普通的一句话。", "neutral"); got != "neutral" {
		t.Fatalf("expected default neutral, got %s", got)
	}
}

func TestFromTagsJSON(t *testing.T) {
	if got, ok := FromTagsJSON(`{"emotion": "happy"}`); !ok || got != "happy" {
		t.Fatalf("expected happy from object, got %q ok=%v", got, ok)
	}
	if got, ok := FromTagsJSON(`["emotion:sad"]`); !ok || got != "sad" {
		t.Fatalf("expected sad from list, got %q ok=%v", got, ok)
	}
	if _, ok := FromTagsJSON(""); ok {
		t.Fatal("expected no result for empty input")
	}
}
