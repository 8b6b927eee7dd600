package docdb

import (
	"strings"
	"unicode"
)

var englishStopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "but": true, "by": true, "for": true, "if": true, "in": true,
	"into": true, "is": true, "it": true, "no": true, "not": true, "of": true,
	"on": true, "or": true, "such": true, "that": true, "the": true,
	"their": true, "then": true, "there": true, "these": true, "they": true,
	"this": true, "to": true, "was": true, "will": true, "with": true,
}

// tokenize splits text into distinct lowercase words, dropping stop words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := words[:0]
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		if englishStopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

type textMode int

const (
	textExact textMode = iota
	textPrefix
	textSuffix
	textContains
)

// textQuery is a parsed full-text search string: either a set of words,
// or one word with a leading and/or trailing '*'.
type textQuery struct {
	mode  textMode
	terms []string
}

func parseTextQuery(s string) (textQuery, error) {
	s = strings.TrimSpace(s)
	lead, trail := strings.HasPrefix(s, "*"), strings.HasSuffix(s, "*")
	if !lead && !trail {
		return textQuery{mode: textExact, terms: tokenize(s)}, nil
	}
	if s == "*" || s == "**" {
		return textQuery{}, filterErrf("%q is not a valid search string", s)
	}
	if len(strings.Fields(s)) > 1 {
		return textQuery{}, filterErrf("multiple words with wildcard are not supported: %q", s)
	}
	term := strings.ToLower(strings.Trim(s, "*"))
	switch {
	case lead && trail:
		return textQuery{mode: textContains, terms: []string{term}}, nil
	case lead:
		return textQuery{mode: textSuffix, terms: []string{term}}, nil
	default:
		return textQuery{mode: textPrefix, terms: []string{term}}, nil
	}
}

func (q textQuery) matchToken(token string) bool {
	term := q.terms[0]
	switch q.mode {
	case textPrefix:
		return strings.HasPrefix(token, term)
	case textSuffix:
		return strings.HasSuffix(token, term)
	case textContains:
		return strings.Contains(token, term)
	default:
		for _, t := range q.terms {
			if t == token {
				return true
			}
		}
		return false
	}
}

// matchText reports whether any token of text satisfies the query.
func (q textQuery) matchText(text string) bool {
	if len(q.terms) == 0 {
		return false
	}
	for _, token := range tokenize(text) {
		if q.matchToken(token) {
			return true
		}
	}
	return false
}
