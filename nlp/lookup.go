package nlp

import "strings"

// Tier identifies how a vocabulary term matched a prompt. Tiers are ordered
// by strength; TierNone means no match.
type Tier int

const (
	TierNone Tier = iota
	TierFuzzy
	TierStem
	TierExact
)

// String returns the tier name for logs.
func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierStem:
		return "stem"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Matched reports whether the tier represents a hit.
func (t Tier) Matched() bool { return t != TierNone }

// Doc is a pre-tokenized prompt, built once per parse and shared by every
// lookup so stems are computed a single time.
type Doc struct {
	Text   string
	Tokens []string
	Stems  []string
}

// NewDoc tokenizes and stems text. Text is expected to be normalized
// (lowercased) already.
func NewDoc(text string) *Doc {
	tokens := Tokenize(text)
	return &Doc{
		Text:   text,
		Tokens: tokens,
		Stems:  StemAll(tokens),
	}
}

// HasWord reports whether word appears as a whole token.
func (d *Doc) HasWord(word string) bool {
	return ContainsWord(d.Tokens, word)
}

// Match resolves term against the document through the three tiers in
// order: substring inclusion, stemmed-token equality, adaptive fuzzy match.
// Terms of three characters or fewer only match as whole tokens; substring
// inclusion would let "log" hit inside "technology".
func (d *Doc) Match(term string) Tier {
	if len(term) <= 3 {
		if d.HasWord(term) {
			return TierExact
		}
		return TierNone
	}
	if strings.Contains(d.Text, term) {
		return TierExact
	}
	ts := Stem(term)
	for _, st := range d.Stems {
		if st == ts {
			return TierStem
		}
	}
	for _, tok := range d.Tokens {
		if FuzzyMatch(tok, term) {
			return TierFuzzy
		}
	}
	return TierNone
}

// MatchAny returns the strongest tier across terms.
func (d *Doc) MatchAny(terms []string) Tier {
	best := TierNone
	for _, term := range terms {
		if tier := d.Match(term); tier > best {
			best = tier
		}
	}
	return best
}
