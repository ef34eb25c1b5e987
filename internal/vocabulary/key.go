package vocabulary

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Text applies the normalization used for names: NFKC, trimmed, inner
// whitespace collapsed to single spaces.
func Text(s string) string {
	s = norm.NFKC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// Key is Text followed by Unicode case folding. Vocabulary entries, query
// tags and names are all compared in this form.
func Key(s string) string {
	t := Text(s)
	if t == "" {
		return ""
	}
	return cases.Fold().String(t)
}
