package llm

import "strings"

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// StripThinkingTags drops <think>...</think> blocks that reasoning models
// (qwen3, deepseek-r1) emit before their answer. An unclosed block swallows
// everything after the opening tag.
func StripThinkingTags(s string) string {
	var b strings.Builder
	for {
		before, rest, found := strings.Cut(s, thinkOpen)
		b.WriteString(before)
		if !found {
			break
		}
		_, after, closed := strings.Cut(rest, thinkClose)
		if !closed {
			break
		}
		s = after
	}
	return strings.TrimSpace(b.String())
}
