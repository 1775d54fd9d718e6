package prompt

import (
	"regexp"
	"strings"

	"github.com/hubenschmidt/voice-call-gateway/internal/session"
)

var (
	meaningfulRe = regexp.MustCompile(`[A-Za-z0-9]`)
	fenceRe      = regexp.MustCompile("(?s)```.*?```")
	linePrefixRe = regexp.MustCompile(`^\s*[-*•\d.)(]+\s*`)
)

// BuildPrethinkPrompt renders the prompt sent to the speculative
// "predict what the user will say next" pass: recent history plus
// instructions to emit 1-3 short, unembellished guesses. Ported from
// original_source/core/prethink.py's build_prethink_prompt.
func BuildPrethinkPrompt(recentHistory []session.Turn) string {
	var lines []string
	for _, turn := range recentHistory {
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

	historyText := "(none)"
	if len(lines) > 0 {
		historyText = strings.Join(lines, "\n")
	}

	return "You are a conversation look-ahead assistant. Based on the recent " +
		"conversation, predict what the user is most likely to say next.\n" +
		"Output requirements:\n" +
		"1. Output only 1-3 predictions, with no explanation of your reasoning.\n" +
		"2. One prediction per line, concise, no more than 40 characters.\n" +
		"3. Do not invent new facts; if there isn't enough information, give a broad guess.\n" +
		"4. Do not output markdown, code blocks, labels, or extra prefixes.\n\n" +
		"Recent conversation:\n" + historyText + "\n\n" +
		"Predictions:"
}

// SanitizePrethinkResult cleans a raw prethink completion: strips code
// fences, drops empty/list-bulleted/non-meaningful lines, keeps at most
// 3 lines, and truncates to maxChars. Ported from
// original_source/core/prethink.py's sanitize_prethink_result.
func SanitizePrethinkResult(raw string, maxChars int) string {
	if raw == "" {
		return ""
	}
	if maxChars < 60 {
		maxChars = 60
	}

	text := fenceRe.ReplaceAllString(raw, "")
	text = strings.TrimSpace(strings.ReplaceAll(text, "\r", "\n"))
	if text == "" {
		return ""
	}

	var cleaned []string
	for _, line := range strings.Split(text, "\n") {
		line = linePrefixRe.ReplaceAllString(strings.TrimSpace(line), "")
		if line == "" {
			continue
		}
		if !meaningfulRe.MatchString(line) {
			continue
		}
		cleaned = append(cleaned, line)
		if len(cleaned) >= 3 {
			break
		}
	}

	result := strings.TrimSpace(strings.Join(cleaned, "\n"))
	if result == "" {
		return ""
	}
	if runes := []rune(result); len(runes) > maxChars {
		result = strings.TrimRight(string(runes[:maxChars]), " \t\n")
	}
	return result
}

// BuildPrethinkInjectionBlock wraps a sanitized hint into the labeled,
// internal-only block injected ahead of the next turn's prompt. Empty
// hint returns an empty block (no injection). Ported from
// original_source/core/prethink.py's build_prethink_injection_block.
func BuildPrethinkInjectionBlock(hint string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return ""
	}
	return "[INTERNAL REFERENCE - likely next user intent (may be inaccurate)]\n" +
		hint + "\n" +
		"For internal reasoning only, never repeat this to the user; if it conflicts with the current input, the current input wins."
}
