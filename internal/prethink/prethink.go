// Package prethink spawns the speculative "predict the user's next
// turn" background job: build a short prompt from recent history, run
// it against an LLM backend with its own timeout and cancellation, then
// store the sanitized result in the session's single-slot hint cache
// for the next real turn to consume.
//
// Grounded on original_source/websocket_handler.py's
// _spawn_prethink_task/_run_prethink_job and
// original_source/core/prethink.py.
package prethink

import (
	"context"
	"log/slog"
	"time"

	"github.com/hubenschmidt/voice-call-gateway/internal/llm"
	"github.com/hubenschmidt/voice-call-gateway/internal/prompt"
	"github.com/hubenschmidt/voice-call-gateway/internal/session"
)

// Config controls whether and how the speculative job runs. Mirrors
// websocket_handler.py's _PRETHINK_DEFAULTS/_resolve_prethink_config.
type Config struct {
	Enabled            bool
	ModelName          string
	TimeoutMs          int
	MaxHistoryMessages int
	MaxOutputChars     int
	MinUserTextChars   int
}

// DefaultConfig matches _PRETHINK_DEFAULTS (disabled unless explicitly
// turned on by plugin configuration).
var DefaultConfig = Config{
	Enabled:            false,
	ModelName:          "",
	TimeoutMs:          600,
	MaxHistoryMessages: 10,
	MaxOutputChars:     220,
	MinUserTextChars:   2,
}

// Normalize clamps fields to the same floors _resolve_prethink_config
// applies, so a zero-value or partially-set Config behaves sanely.
func (c Config) Normalize() Config {
	if c.TimeoutMs < 100 {
		c.TimeoutMs = 100
	}
	if c.MaxHistoryMessages < 2 {
		c.MaxHistoryMessages = 2
	}
	if c.MaxOutputChars < 60 {
		c.MaxOutputChars = 60
	}
	if c.MinUserTextChars < 1 {
		c.MinUserTextChars = 1
	}
	return c
}

// Engine runs speculative prethink jobs against a ChatClient backend.
type Engine struct {
	client llm.ChatClient
	log    *slog.Logger
}

func NewEngine(client llm.ChatClient, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{client: client, log: log}
}

// Spawn decides whether to start a speculative job for the session's
// current history and, if so, launches it in a background goroutine.
// fallbackModel is used when cfg.ModelName is empty (mirrors the
// caller-supplied "replyer" default in _spawn_prethink_task). Returns
// false if no job was started.
func (e *Engine) Spawn(ctx context.Context, sess *session.Session, cfg Config, fallbackModel string, sourceTurnID int) bool {
	cfg = cfg.Normalize()
	if !cfg.Enabled {
		return false
	}

	history := sess.History()
	if len(history) == 0 {
		return false
	}

	lastUser := sess.LastUserText()
	if len(lastUser) < cfg.MinUserTextChars {
		e.log.Info("prethink miss", "session", sess.ID, "reason", "user_text_too_short")
		return false
	}

	start := 0
	if len(history) > cfg.MaxHistoryMessages {
		start = len(history) - cfg.MaxHistoryMessages
	}
	recent := history[start:]
	promptText := prompt.BuildPrethinkPrompt(recent)

	model := cfg.ModelName
	if model == "" {
		model = fallbackModel
	}

	jobID := sess.CreatePrethinkJob()
	jobCtx, cancel := context.WithCancel(ctx)
	sess.SetPrethinkTask(cancel, jobID)

	go e.run(jobCtx, sess, model, promptText, cfg, jobID, sourceTurnID)
	return true
}

func (e *Engine) run(ctx context.Context, sess *session.Session, model, promptText string, cfg Config, jobID, sourceTurnID int) {
	defer sess.ClearPrethinkTask()

	started := time.Now()
	e.log.Info("prethink start", "session", sess.ID, "job", jobID, "source_turn", sourceTurnID, "model", model, "timeout_ms", cfg.TimeoutMs)

	timeoutCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	defer cancel()

	var chunks []byte
	maxLen := cfg.MaxOutputChars * 3
	stop := false

	_, err := e.client.Chat(timeoutCtx, promptText, "", "", model, func(token string) {
		if stop || token == "" {
			return
		}
		chunks = append(chunks, token...)
		if len(chunks) >= maxLen {
			stop = true
			cancel()
		}
	})

	if err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			e.log.Info("prethink timeout", "session", sess.ID, "job", jobID)
			return
		}
		if ctx.Err() != nil {
			e.log.Info("prethink cancelled", "session", sess.ID, "job", jobID)
			return
		}
		if !stop {
			e.log.Warn("prethink error", "session", sess.ID, "job", jobID, "err", err)
			return
		}
	}

	hint := prompt.SanitizePrethinkResult(string(chunks), cfg.MaxOutputChars)
	if hint == "" {
		e.log.Info("prethink miss", "session", sess.ID, "job", jobID, "reason", "empty")
		return
	}

	if sess.StorePrethinkHint(jobID, hint, sourceTurnID) {
		e.log.Info("prethink ready", "session", sess.ID, "job", jobID, "latency_ms", time.Since(started).Milliseconds(), "chars", len(hint))
	} else {
		e.log.Info("prethink miss", "session", sess.ID, "job", jobID, "reason", "stale")
	}
}
