package parser

import "strings"

// splitFrontMatter separates a leading "---" front-matter block from the
// body. Only flat "key: value" lines are recognized; that is all the corpus
// uses. Files without front matter return an empty map and the whole text.
func splitFrontMatter(text string) (map[string]string, string) {
	fm := map[string]string{}
	if !strings.HasPrefix(text, "---\n") {
		return fm, text
	}
	rest := text[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return fm, text
	}
	block := rest[:end]
	body := rest[end+4:]
	body = strings.TrimPrefix(body, "\n")

	for _, line := range strings.Split(block, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key != "" {
			fm[key] = value
		}
	}
	return fm, body
}
