package search

import "strings"

// operatorReplacer blanks every character the FTS5 query grammar treats as
// an operator. The vector side always receives the raw query.
var operatorReplacer = strings.NewReplacer(
	"?", " ", "*", " ", "+", " ", "-", " ", "(", " ", ")", " ",
	"^", " ", "~", " ", `"`, " ", "'", " ", ":", " ", ".", " ", "/", " ",
)

// Sanitize strips FTS5 operators from a user query and collapses whitespace.
// If stripping leaves nothing, the original query is returned unchanged and
// the backend's syntax error becomes the caller's problem. Idempotent.
func Sanitize(query string) string {
	cleaned := strings.Join(strings.Fields(operatorReplacer.Replace(query)), " ")
	if cleaned == "" {
		return query
	}
	return cleaned
}
