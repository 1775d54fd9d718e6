// Package prompt builds the system prompt and per-turn user prompt sent
// to the LLM: bot personality, hard output-format rules (emotion tag
// prefix, no stage directions, no markdown), optional prethink
// injection block, and bounded recent-history rendering.
//
// Grounded on original_source/core/prompt_builder.py and teacher
// internal/prompts/prompts.go.
package prompt

import (
	"math/rand"
	"strings"

	"github.com/hubenschmidt/voice-call-gateway/internal/session"
)

const DefaultSystem = "You are a helpful, concise voice assistant."

// Personality configures the bot identity and speaking style used to
// build the system prompt. Generalized from prompt_builder.py's
// bot_config/personality_config globals into an explicit value so it
// can vary per session/tenant instead of being read from process-wide
// config.
type Personality struct {
	BotName          string
	AliasNames       []string
	Base             string   // base personality description
	States           []string // alternate personality states, chosen probabilistically
	StateProbability float64

	ReplyStyle          string
	MultipleReplyStyle  []string
	MultipleProbability float64
	PlanStyle           string // behavioral rules / constraints
}

// BuildSystemPrompt renders the full system prompt: identity, personality
// (with probabilistic state substitution), reply style (with
// probabilistic multi-style substitution), plan style, and the hard
// output-format rules. Ported from prompt_builder.py's build_system_prompt.
func BuildSystemPrompt(p Personality) string {
	if p.BotName == "" {
		return DefaultSystem + "\n" + hardOutputRules
	}

	personality := p.Base
	if len(p.States) > 0 && p.StateProbability > 0 && rand.Float64() < p.StateProbability {
		personality = p.States[rand.Intn(len(p.States))]
	}

	var b strings.Builder
	b.WriteString("Your name is ")
	b.WriteString(p.BotName)
	b.WriteString(".")
	if len(p.AliasNames) > 0 {
		b.WriteString(" People also call you ")
		b.WriteString(strings.Join(p.AliasNames, ", "))
		b.WriteString(".")
	}
	if personality != "" {
		b.WriteString("\nYou ")
		b.WriteString(personality)
	}

	replyStyle := p.ReplyStyle
	if len(p.MultipleReplyStyle) > 0 && p.MultipleProbability > 0 && rand.Float64() < p.MultipleProbability {
		replyStyle = p.MultipleReplyStyle[rand.Intn(len(p.MultipleReplyStyle))]
	}
	if replyStyle != "" {
		b.WriteString("\nYour speaking style is: ")
		b.WriteString(replyStyle)
	}

	if p.PlanStyle != "" {
		b.WriteString("\nBehavioral rules: ")
		b.WriteString(p.PlanStyle)
	}

	b.WriteString("\n")
	b.WriteString(hardOutputRules)
	return b.String()
}

// hardOutputRules is appended to every system prompt, bot-personality or
// not, enforcing the emotion-tag-prefixed, speakable-only response
// contract the rest of the pipeline (internal/emotion, internal/chunker)
// depends on.
const hardOutputRules = "Reply in short, spoken-friendly sentences suitable for text-to-speech.\n" +
	"[STRICT OUTPUT FORMAT]\n" +
	"1. Every reply must start with an emotion tag, exactly formatted as <emo:neutral|happy|sad|angry|shy|surprised>.\n" +
	"2. After the tag, output only speakable dialogue text. Never include stage directions, narration, or descriptions of actions or expressions.\n" +
	"3. Never output text like \"(smiles)\", \"[sighs]\", \"*pauses*\", \"(looks at you)\", or narrator framing like \"she said\".\n" +
	"4. If the emotion is unclear, use <emo:neutral>.\n" +
	"5. Output only the emotion tag plus the dialogue line — no extra explanation, comments, markdown, or code blocks."

// RAGContext wraps retrieved knowledge base context into a labeled block.
func RAGContext(context string) string {
	if context == "" {
		return ""
	}
	return "Relevant context from knowledge base:\n" + context
}

// BuildTurnPrompt assembles the final user-turn content sent as the
// request's user message: an optional prethink injection block, then
// the bounded recent-history render, then the current input (when
// non-empty), then a trailing "Assistant: " suffix. Matches the
// structure described for the Prompt Builder: prethink injection is
// explicitly labeled internal-only and current input takes precedence
// on conflict.
func BuildTurnPrompt(prethinkBlock string, history []session.Turn, maxHistoryTurns int, currentInput string) string {
	var b strings.Builder
	if prethinkBlock != "" {
		b.WriteString(prethinkBlock)
		b.WriteString("\n\n")
	}

	if rendered := renderHistory(history, maxHistoryTurns); rendered != "" {
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}

	if currentInput != "" {
		b.WriteString(currentInput)
		b.WriteString("\n\n")
	}
	b.WriteString("Assistant: ")
	return b.String()
}

func renderHistory(history []session.Turn, maxTurns int) string {
	if len(history) == 0 {
		return ""
	}
	start := 0
	if maxTurns > 0 && len(history) > maxTurns {
		start = len(history) - maxTurns
	}

	var lines []string
	for _, turn := range history[start:] {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		role := "Assistant"
		if turn.Role == "user" {
			role = "User"
		}
		lines = append(lines, role+": "+content)
	}
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}
