// Package searchutil holds the text helpers shared by the research loop:
// reasoning-block removal, link extraction and findings formatting.
package searchutil

import (
	"regexp"
	"strings"
)

var thinkRegex = regexp.MustCompile(`(?s)<think>.*?</think>`)

// RemoveThinkTags removes <think>...</think> blocks anywhere in a model response.
// Some models (deepseek-r1, qwen3) emit their reasoning in these blocks.
func RemoveThinkTags(s string) string {
	return strings.TrimSpace(thinkRegex.ReplaceAllString(s, ""))
}
