package llm

import "strings"

// StripThinkingTags removes <think>...</think> blocks from model output.
// An unclosed tag drops everything after it.
func StripThinkingTags(s string) string {
	for {
		start := strings.Index(s, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(s, "</think>")
		if end == -1 {
			s = strings.TrimSpace(s[:start])
			break
		}
		s = s[:start] + s[end+len("</think>"):]
	}
	return strings.TrimSpace(s)
}

// StripMarkdownFences strips thinking tags, then removes the outermost
// ``` fence pair if one is present.
func StripMarkdownFences(s string) string {
	s = StripThinkingTags(s)
	lines := strings.Split(s, "\n")

	start := -1
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			start = i
			break
		}
	}
	if start == -1 {
		return s
	}
	end := len(lines)
	for i := len(lines) - 1; i > start; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			end = i
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines[start+1:end], "\n"))
}

// ExtractJSONObject returns the span from the first '{' to the last '}'
// after stripping fences and thinking tags. It returns "" when no object
// delimiters are found.
func ExtractJSONObject(s string) string {
	s = StripMarkdownFences(s)
	open := strings.Index(s, "{")
	closing := strings.LastIndex(s, "}")
	if open == -1 || closing < open {
		return ""
	}
	return s[open : closing+1]
}
