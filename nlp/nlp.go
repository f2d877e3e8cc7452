// Package nlp holds the small text utilities behind intent parsing: a
// suffix stemmer, adaptive fuzzy matching, abbreviation expansion, keyword
// extraction, a negation window scan and tiered term lookup.
//
// Everything here is deterministic table-driven matching over a single
// prompt. There is no semantic understanding and no language support beyond
// English.
package nlp

import (
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^a-z0-9']+`)

// Tokenize lowercases text and splits it into word tokens. Apostrophes are
// kept so contractions like "don't" survive as single tokens.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	parts := nonWord.Split(lower, -1)
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "'")
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

// stopWords are filtered from keyword extraction. Three-letter words and
// shorter are already dropped by the length rule, so only longer function
// words are listed.
var stopWords = map[string]bool{
	"that": true, "this": true, "with": true, "from": true,
	"when": true, "what": true, "where": true, "which": true,
	"will": true, "would": true, "should": true, "could": true,
	"have": true, "been": true, "being": true, "they": true,
	"them": true, "their": true, "there": true, "then": true,
	"than": true, "your": true, "into": true, "onto": true,
	"also": true, "some": true, "such": true, "each": true,
	"very": true, "just": true, "like": true, "want": true,
	"need": true, "please": true, "about": true, "after": true,
	"before": true, "make": true, "made": true, "gets": true,
	"does": true, "doing": true, "while": true,
}

// Keywords extracts the content keywords of a prompt: lowercased,
// punctuation-stripped, longer than three characters, stop-worded, and
// deduplicated preserving first-seen order.
func Keywords(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]bool, len(tokens))
	var out []string
	for _, tok := range tokens {
		tok = strings.Trim(tok, "'")
		if len(tok) <= 3 || stopWords[tok] {
			continue
		}
		if seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// IsStopWord reports whether word is in the keyword stop list.
func IsStopWord(word string) bool {
	return stopWords[word]
}

// ContainsWord reports whether word appears as a whole token.
func ContainsWord(tokens []string, word string) bool {
	for _, tok := range tokens {
		if tok == word {
			return true
		}
	}
	return false
}
