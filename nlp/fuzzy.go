package nlp

import "github.com/agnivade/levenshtein"

// Distance returns the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// FuzzyThreshold returns the edit budget for a vocabulary term: short terms
// (up to 7 characters) tolerate one edit, longer terms two. Terms shorter
// than four characters get no budget; they must match exactly.
func FuzzyThreshold(term string) int {
	switch {
	case len(term) < 4:
		return 0
	case len(term) <= 7:
		return 1
	default:
		return 2
	}
}

// FuzzyMatch reports whether word is within the adaptive edit budget of
// term. A cheap length check rejects obviously distant pairs before the
// distance is computed.
func FuzzyMatch(word, term string) bool {
	threshold := FuzzyThreshold(term)
	if threshold == 0 {
		return word == term
	}
	diff := len(word) - len(term)
	if diff < 0 {
		diff = -diff
	}
	if diff > threshold {
		return false
	}
	return Distance(word, term) <= threshold
}

// FuzzyMatchAny reports whether any token matches term fuzzily.
func FuzzyMatchAny(tokens []string, term string) bool {
	for _, tok := range tokens {
		if FuzzyMatch(tok, term) {
			return true
		}
	}
	return false
}
