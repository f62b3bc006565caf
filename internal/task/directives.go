package task

import (
	"strings"
	"unicode"
)

const modelDirective = "model:"

// ParseDirectives strips a leading "model:<id>" routing token from prompt
// and returns the remaining prompt and the model id. Prompts without the
// token are returned unchanged.
func ParseDirectives(prompt string) (string, string) {
	trimmed := strings.TrimLeftFunc(prompt, unicode.IsSpace)
	if len(trimmed) < len(modelDirective) || !strings.EqualFold(trimmed[:len(modelDirective)], modelDirective) {
		return prompt, ""
	}

	rest := trimmed[len(modelDirective):]
	end := strings.IndexFunc(rest, unicode.IsSpace)
	if end < 0 {
		end = len(rest)
	}

	model := rest[:end]
	if model == "" {
		return prompt, ""
	}
	return strings.TrimSpace(rest[end:]), model
}
