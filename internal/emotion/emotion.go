// Package emotion resolves an avatar emotion value from assistant text:
// either an explicit leading tag ([emotion:happy], <emo:sad>, 【情绪:开心】)
// or, failing that, a keyword and punctuation heuristic.
//
// Ported from original_source/core/emotion.py.
package emotion

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Types is the closed set of emotion values this resolver ever returns.
var Types = []string{"neutral", "happy", "sad", "angry", "shy", "surprised"}

var aliases = map[string]string{
	"neutral": "neutral", "calm": "neutral", "normal": "neutral",
	"平静": "neutral", "中性": "neutral", "普通": "neutral",
	"happy": "happy", "joy": "happy",
	"开心": "happy", "高兴": "happy", "愉快": "happy", "兴奋": "happy",
	"sad": "sad",
	"伤心": "sad", "难过": "sad", "失落": "sad", "沮丧": "sad",
	"angry": "angry", "mad": "angry",
	"生气": "angry", "愤怒": "angry", "恼火": "angry",
	"shy": "shy",
	"害羞": "shy", "脸红": "shy", "不好意思": "shy",
	"surprised": "surprised", "surprise": "surprised",
	"惊讶": "surprised", "震惊": "surprised", "吃惊": "surprised",
}

// aliasOrder preserves emotion.py's dict-insertion-order substring scan,
// since Go map iteration order is random and the first-matching alias
// matters when a key could be a substring match for more than one entry.
var aliasOrder = []string{
	"neutral", "calm", "normal", "平静", "中性", "普通",
	"happy", "joy", "开心", "高兴", "愉快", "兴奋",
	"sad", "伤心", "难过", "失落", "沮丧",
	"angry", "mad", "生气", "愤怒", "恼火",
	"shy", "害羞", "脸红", "不好意思",
	"surprised", "surprise", "惊讶", "震惊", "吃惊",
}

var tagRE = regexp.MustCompile(`(?i)^\s*(?:` +
	`\[(?:emotion|emo)\s*[:=]\s*([a-zA-Z_\p{Han}]+)\s*\]` +
	`|<(?:emotion|emo)\s*[:=]\s*([a-zA-Z_\p{Han}]+)\s*>` +
	`|【(?:情绪|emotion)\s*[:：]\s*([a-zA-Z_\p{Han}]+)\s*】` +
	`)\s*`)

// Normalize maps a free-form emotion string to the closed Types set via
// exact alias match, falling back to substring-containment, then default.
func Normalize(value, def string) string {
	if def == "" {
		def = "neutral"
	}
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return def
	}
	if v, ok := aliases[key]; ok {
		return v
	}
	for _, k := range aliasOrder {
		if strings.Contains(key, k) {
			return aliases[k]
		}
	}
	return def
}

// StripLeadingTag extracts and removes a leading emotion tag from text.
// Returns ("", text) if no tag is present at the start of text.
func StripLeadingTag(text string) (string, string) {
	if text == "" {
		return "", ""
	}
	loc := tagRE.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", text
	}
	raw := submatch(text, loc, 1)
	if raw == "" {
		raw = submatch(text, loc, 2)
	}
	if raw == "" {
		raw = submatch(text, loc, 3)
	}
	cleaned := text[loc[1]:]
	return Normalize(raw, "neutral"), cleaned
}

func submatch(text string, loc []int, group int) string {
	start, end := loc[2*group], loc[2*group+1]
	if start < 0 || end < 0 {
		return ""
	}
	return text[start:end]
}

// LeadingPrefixState is the outcome of scanning a streamed prefix for a
// leading emotion tag before enough of it has arrived to know for sure.
type LeadingPrefixState int

const (
	// StateNeedMore means the prefix looks like the start of a tag but is
	// not yet complete; the caller should keep buffering.
	StateNeedMore LeadingPrefixState = iota
	// StateResolved means a complete, valid leading tag was found.
	StateResolved
	// StateNoTag means the prefix cannot be a leading tag (or it has been
	// definitively ruled out by accumulating too many characters first).
	StateNoTag
)

// maxLeadingPrefixChunks / maxLeadingPrefixChars cap how long a caller
// should wait for a leading tag to complete before giving up and treating
// the text as untagged, per original_source/websocket_handler.py's
// _resolve_leading_emotion_prefix safety cap (6 chunks / 80 chars).
const (
	maxLeadingPrefixChunks = 6
	maxLeadingPrefixChars  = 80
)

// ResolveLeadingPrefix inspects a streamed prefix (the text accumulated
// so far from an LLM token stream) for a leading emotion tag. chunkCount
// is how many stream chunks have been folded into prefix so far.
func ResolveLeadingPrefix(prefix string, chunkCount int) (LeadingPrefixState, string, string) {
	if prefix == "" {
		return StateNeedMore, "", ""
	}

	if emo, cleaned := StripLeadingTag(prefix); emo != "" {
		return StateResolved, emo, cleaned
	}

	stripped := strings.TrimLeft(prefix, " \t\r\n")
	if stripped == "" {
		return StateNeedMore, "", ""
	}

	if (hasPrefix(stripped, "<emo") || hasPrefix(stripped, "<emotion")) && !strings.Contains(stripped, ">") {
		return capped(chunkCount, utf8.RuneCountInString(prefix), prefix)
	}
	if (hasPrefix(stripped, "[emo") || hasPrefix(stripped, "[emotion")) && !strings.Contains(stripped, "]") {
		return capped(chunkCount, utf8.RuneCountInString(prefix), prefix)
	}
	if (hasPrefix(stripped, "【情绪") || hasPrefix(stripped, "【emotion")) && !strings.Contains(stripped, "】") {
		return capped(chunkCount, utf8.RuneCountInString(prefix), prefix)
	}

	return StateNoTag, "", prefix
}

func capped(chunkCount, charLen int, prefix string) (LeadingPrefixState, string, string) {
	if chunkCount >= maxLeadingPrefixChunks || charLen >= maxLeadingPrefixChars {
		return StateNoTag, "", prefix
	}
	return StateNeedMore, "", ""
}

func hasPrefix(s, p string) bool {
	return strings.HasPrefix(s, p)
}

// weighted keyword tables, ported verbatim from infer_emotion.
var happyKeywords = []string{"开心", "高兴", "喜欢", "太棒", "哈哈", "嘿嘿", "喵~", "耶", "爱你"}
var sadKeywords = []string{"难过", "伤心", "呜", "哭", "失落", "抱抱", "委屈", "遗憾"}
var angryKeywords = []string{"生气", "气死", "愤怒", "烦死", "讨厌", "火大", "别烦"}
var shyKeywords = []string{"害羞", "脸红", "不好意思", "羞", "///", "*>_<*"}
var surprisedKeywords = []string{"哇", "诶", "居然", "真的吗", "不会吧", "惊", "震惊"}

// Infer scores text against keyword and punctuation heuristics and
// returns the highest-scoring emotion, or def if nothing scored above 0.
func Infer(text, def string) string {
	if def == "" {
		def = "neutral"
	}
	if text == "" {
		return def
	}

	score := map[string]int{"happy": 0, "sad": 0, "angry": 0, "shy": 0, "surprised": 0}
	add := func(e string, w int) { score[e] += w }

	for _, kw := range happyKeywords {
		if strings.Contains(text, kw) {
			add("happy", 2)
		}
	}
	for _, kw := range sadKeywords {
		if strings.Contains(text, kw) {
			add("sad", 2)
		}
	}
	for _, kw := range angryKeywords {
		if strings.Contains(text, kw) {
			add("angry", 2)
		}
	}
	for _, kw := range shyKeywords {
		if strings.Contains(text, kw) {
			add("shy", 2)
		}
	}
	for _, kw := range surprisedKeywords {
		if strings.Contains(text, kw) {
			add("surprised", 2)
		}
	}

	add("surprised", strings.Count(text, "？")+strings.Count(text, "?"))
	add("happy", strings.Count(text, "~"))
	add("happy", (strings.Count(text, "！")+strings.Count(text, "!"))/2)

	best, bestScore := def, 0
	for _, e := range []string{"happy", "sad", "angry", "shy", "surprised"} {
		if score[e] > bestScore {
			best, bestScore = e, score[e]
		}
	}
	if bestScore <= 0 {
		return def
	}
	return best
}

// FromTagsJSON is a best-effort parse of an emotion out of an assets-table
// tags_json blob: either {"emotion": "..."} or a list containing a
// string item prefixed "emotion:"/"emo:" or a {"emotion": "..."} object.
func FromTagsJSON(tagsJSON string) (string, bool) {
	if strings.TrimSpace(tagsJSON) == "" {
		return "", false
	}
	trimmed := strings.TrimSpace(tagsJSON)
	if strings.HasPrefix(trimmed, "{") {
		if v, ok := extractObjectEmotion(trimmed); ok {
			return Normalize(v, "neutral"), true
		}
		return "", false
	}
	if strings.HasPrefix(trimmed, "[") {
		return extractListEmotion(trimmed)
	}
	return "", false
}

// extractObjectEmotion and extractListEmotion deliberately avoid pulling
// in a JSON decode dependency for this best-effort, narrow-purpose path;
// callers with well-formed JSON should prefer encoding/json directly and
// call Normalize on the decoded field.
func extractObjectEmotion(s string) (string, bool) {
	const key = `"emotion"`
	idx := strings.Index(s, key)
	if idx < 0 {
		return "", false
	}
	rest := s[idx+len(key):]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return "", false
	}
	rest = strings.TrimSpace(rest[colon+1:])
	rest = strings.TrimPrefix(rest, `"`)
	end := strings.IndexAny(rest, `",}`)
	if end < 0 {
		end = len(rest)
	}
	return rest[:end], true
}

func extractListEmotion(s string) (string, bool) {
	inner := strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(s), "]"), "[")
	for _, item := range strings.Split(inner, ",") {
		item = strings.Trim(strings.TrimSpace(item), `"`)
		lower := strings.ToLower(item)
		if strings.HasPrefix(lower, "emotion:") {
			return item[len("emotion:"):], true
		}
		if strings.HasPrefix(lower, "emo:") {
			return item[len("emo:"):], true
		}
	}
	return "", false
}
