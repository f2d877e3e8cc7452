package nlp

// negationMarkers start a poison window. Contractions appear with and
// without the apostrophe because tokenization keeps it.
var negationMarkers = map[string]bool{
	"not": true, "no": true, "never": true,
	"don't": true, "dont": true,
	"doesn't": true, "doesnt": true,
	"won't": true, "wont": true,
	"can't": true, "cant": true,
	"stop": true, "without": true, "cancel": true,
	"disable": true, "except": true, "exclude": true, "avoid": true,
}

// negationWindow is the number of content words poisoned by one marker.
const negationWindow = 5

// negationRatio is the poisoned share of content tokens above which the
// whole prompt counts as negated.
const negationRatio = 0.4

// NegationScan walks the prompt's tokens. Every negation marker poisons the
// next five content words; the prompt is negated when more than 40% of its
// content tokens fall inside a poison window. The ratio is returned for
// observability.
func NegationScan(text string) (bool, float64) {
	tokens := Tokenize(text)

	var content, poisoned int
	window := 0
	for _, tok := range tokens {
		if negationMarkers[tok] {
			window = negationWindow
			continue
		}
		if len(tok) <= 3 {
			continue
		}
		content++
		if window > 0 {
			poisoned++
			window--
		}
	}

	if content == 0 {
		return false, 0
	}
	ratio := float64(poisoned) / float64(content)
	return ratio > negationRatio, ratio
}

// IsNegationMarker reports whether tok is a negation marker.
func IsNegationMarker(tok string) bool {
	return negationMarkers[tok]
}
