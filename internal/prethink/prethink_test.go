package prethink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/llm"
	"github.com/hubenschmidt/voice-call-gateway/internal/session"
)

func newTestSession(t *testing.T, userText string) *session.Session {
	t.Helper()
	sess := session.New("sess-1")
	sess.AppendHistory("user", userText)
	sess.AppendHistory("assistant", "sure, one moment")
	return sess
}

func waitForHint(t *testing.T, sess *session.Session) (string, bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hint, _, _, ok := sess.ConsumePrethinkHint(); ok {
			return hint, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return "", false
}

func TestSpawnSkipsWhenDisabled(t *testing.T) {
	sess := newTestSession(t, "what's the weather like")
	e := NewEngine(llm.NewMockClient("maybe pricing"), nil)

	cfg := DefaultConfig
	cfg.Enabled = false

	if e.Spawn(context.Background(), sess, cfg, "replyer", 1) {
		t.Fatal("expected Spawn to report false when disabled")
	}
}

func TestSpawnSkipsWhenUserTextTooShort(t *testing.T) {
	sess := newTestSession(t, "hi")
	e := NewEngine(llm.NewMockClient("maybe pricing"), nil)

	cfg := DefaultConfig
	cfg.Enabled = true
	cfg.MinUserTextChars = 10

	if e.Spawn(context.Background(), sess, cfg, "replyer", 1) {
		t.Fatal("expected Spawn to report false when last user text is too short")
	}
}

func TestSpawnSkipsWithEmptyHistory(t *testing.T) {
	sess := session.New("sess-empty")
	e := NewEngine(llm.NewMockClient("maybe pricing"), nil)

	cfg := DefaultConfig
	cfg.Enabled = true

	if e.Spawn(context.Background(), sess, cfg, "replyer", 1) {
		t.Fatal("expected Spawn to report false with no history")
	}
}

func TestSpawnStoresSanitizedHintOnSuccess(t *testing.T) {
	sess := newTestSession(t, "what's the weather like tomorrow")
	e := NewEngine(llm.NewMockClient("- maybe about pricing\n- or delivery time"), nil)

	cfg := DefaultConfig
	cfg.Enabled = true
	cfg.MinUserTextChars = 2

	if !e.Spawn(context.Background(), sess, cfg, "replyer", 7) {
		t.Fatal("expected Spawn to start a job")
	}

	hint, ok := waitForHint(t, sess)
	if !ok {
		t.Fatal("expected a hint to be stored within the deadline")
	}
	if strings.HasPrefix(hint, "-") {
		t.Fatalf("expected bullet prefix stripped from stored hint, got %q", hint)
	}
	if !strings.Contains(hint, "pricing") {
		t.Fatalf("expected hint to retain content, got %q", hint)
	}
}

func TestSpawnStoresNothingWhenModelProducesOnlyNoise(t *testing.T) {
	sess := newTestSession(t, "what's the weather like tomorrow")
	e := NewEngine(llm.NewMockClient("```\n```"), nil)

	cfg := DefaultConfig
	cfg.Enabled = true
	cfg.MinUserTextChars = 2

	if !e.Spawn(context.Background(), sess, cfg, "replyer", 3) {
		t.Fatal("expected Spawn to start a job")
	}

	if _, ok := waitForHint(t, sess); ok {
		t.Fatal("expected no hint to be stored for fence-only output")
	}
}

func TestSpawnNewerJobInvalidatesOlderStore(t *testing.T) {
	sess := newTestSession(t, "what's the weather like tomorrow")
	e := NewEngine(llm.NewMockClient("a reasonable guess"), nil)

	cfg := DefaultConfig
	cfg.Enabled = true
	cfg.MinUserTextChars = 2

	jobID := sess.CreatePrethinkJob()
	sess.CreatePrethinkJob() // supersede jobID before the stale store attempt

	if sess.StorePrethinkHint(jobID, "stale hint", 1) {
		t.Fatal("expected stale job id store to be rejected")
	}
	if _, _, _, ok := sess.ConsumePrethinkHint(); ok {
		t.Fatal("expected no hint to have been stored")
	}

	_ = e // engine not otherwise exercised by this job-id invariant check
}
