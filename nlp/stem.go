package nlp

import "strings"

// doubledConsonants may be reduced after stripping -ing/-ed. Doubled l, s
// and z are legitimate word endings (fall, cross, buzz) and are left alone.
var doubledConsonants = "bdgkmnprt"

// Stem reduces a word to a matchable root using a small suffix table. It is
// intentionally cruder than a full Porter stemmer; because both the
// vocabulary terms and the prompt words pass through the same rules, the
// derivations stay symmetric and equality on stems is what matters.
func Stem(word string) string {
	w := strings.ToLower(word)
	if len(w) <= 3 {
		return w
	}

	undouble := false
	switch {
	case strings.HasSuffix(w, "sses"):
		w = strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "ies"):
		w = strings.TrimSuffix(w, "ies") + "y"
	case strings.HasSuffix(w, "tion"):
		w = strings.TrimSuffix(w, "tion") + "t"
	case strings.HasSuffix(w, "ing") && len(w) > 5:
		w = strings.TrimSuffix(w, "ing")
		undouble = true
	case strings.HasSuffix(w, "ed") && len(w) > 4:
		w = strings.TrimSuffix(w, "ed")
		undouble = true
	case strings.HasSuffix(w, "ly") && len(w) > 4:
		w = strings.TrimSuffix(w, "ly")
	case strings.HasSuffix(w, "es") && len(w) > 4:
		w = strings.TrimSuffix(w, "es")
	case strings.HasSuffix(w, "s") && len(w) > 3 &&
		!strings.HasSuffix(w, "ss") && !strings.HasSuffix(w, "us") && !strings.HasSuffix(w, "is"):
		w = strings.TrimSuffix(w, "s")
	}

	if undouble && len(w) >= 2 && w[len(w)-1] == w[len(w)-2] &&
		strings.ContainsRune(doubledConsonants, rune(w[len(w)-1])) {
		w = w[:len(w)-1]
	}

	// Trailing e is dropped so that inflected and base forms meet:
	// price/prices and schedule/scheduled stem identically.
	if strings.HasSuffix(w, "e") && len(w) > 4 {
		w = strings.TrimSuffix(w, "e")
	}

	return w
}

// StemAll maps Stem over words.
func StemAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = Stem(w)
	}
	return out
}
