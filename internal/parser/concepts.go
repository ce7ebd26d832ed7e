package parser

import "strings"

// conceptVocabulary is the fixed seed list. Extraction is substring match
// over the lowercased text, so "patterns" tags "pattern". Intentionally
// small and editable.
var conceptVocabulary = []string{
	"trust", "pattern", "mirror", "append", "history", "context", "delete",
	"behavior", "intention", "decision", "human", "external", "brain",
	"command", "oracle", "timestamp", "immutable", "preserve",
}

// ExtractConcepts returns the deterministic concept set for text, in
// vocabulary order.
func ExtractConcepts(text string) []string {
	lower := strings.ToLower(text)
	concepts := make([]string, 0, 4)
	for _, word := range conceptVocabulary {
		if strings.Contains(lower, word) {
			concepts = append(concepts, word)
		}
	}
	return concepts
}
