package nlp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chainweave/forge/nlp"
)

func TestKeywords(t *testing.T) {
	got := nlp.Keywords("Every 5 minutes check ETH price and alert when it drops below $3000")
	assert.Equal(t, []string{"every", "minutes", "check", "price", "alert", "drops", "below", "3000"}, got)
}

func TestKeywordsDedupePreservesOrder(t *testing.T) {
	got := nlp.Keywords("price price alert price alert check")
	assert.Equal(t, []string{"price", "alert", "check"}, got)
}

func TestKeywordsFiltersShortAndStopWords(t *testing.T) {
	got := nlp.Keywords("this will alert them when the gas fee is low")
	assert.NotContains(t, got, "this")
	assert.NotContains(t, got, "will")
	assert.NotContains(t, got, "them")
	assert.NotContains(t, got, "gas") // three letters
	assert.Contains(t, got, "alert")
}

func TestStem(t *testing.T) {
	cases := map[string]string{
		"checks":     "check",
		"checking":   "check",
		"monitoring": "monitor",
		"swapping":   "swap",
		"dropped":    "drop",
		"crosses":    "cross",
		"notifies":   "notify",
		"parties":    "party",
		"prices":     "pric",
		"price":      "pric",
		"scheduled":  "schedul",
		"schedule":   "schedul",
		"falling":    "fall",
		"alerts":     "alert",
		"gas":        "gas",
	}
	for in, want := range cases {
		assert.Equal(t, want, nlp.Stem(in), "stem(%q)", in)
	}
}

func TestStemSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"price", "prices"},
		{"schedule", "scheduled"},
		{"swap", "swapping"},
		{"drop", "dropped"},
		{"fall", "falling"},
		{"check", "checking"},
		{"alert", "alerts"},
	}
	for _, p := range pairs {
		assert.Equal(t, nlp.Stem(p[0]), nlp.Stem(p[1]), "stems of %q and %q should meet", p[0], p[1])
	}
}

func TestFuzzyMatch(t *testing.T) {
	// Short terms tolerate a single edit.
	assert.True(t, nlp.FuzzyMatch("shedule", "schedule"))
	assert.True(t, nlp.FuzzyMatch("webook", "webhook"))
	assert.False(t, nlp.FuzzyMatch("window", "webhook"))

	// Longer terms tolerate two edits.
	assert.True(t, nlp.FuzzyMatch("tranaction", "transaction"))
	assert.True(t, nlp.FuzzyMatch("transacton", "transaction"))
	assert.False(t, nlp.FuzzyMatch("transit", "transaction"))

	// Terms under four characters must match exactly.
	assert.True(t, nlp.FuzzyMatch("eth", "eth"))
	assert.False(t, nlp.FuzzyMatch("etc", "eth"))
}

func TestFuzzyThreshold(t *testing.T) {
	assert.Equal(t, 0, nlp.FuzzyThreshold("eth"))
	assert.Equal(t, 1, nlp.FuzzyThreshold("webhook")) // 7 chars
	assert.Equal(t, 2, nlp.FuzzyThreshold("schedule")) // 8 chars
}

func TestExpandAbbreviations(t *testing.T) {
	got := nlp.ExpandAbbreviations("every 5 min check the tx bal at this addr")
	assert.Equal(t, "every 5 minute check the transaction balance at this address", got)
}

func TestExpandAbbreviationsWordBoundaries(t *testing.T) {
	// "min" inside "minutes" or "mint" must not expand.
	got := nlp.ExpandAbbreviations("mint tokens every 10 minutes")
	assert.Equal(t, "mint tokens every 10 minutes", got)
}

func TestNormalizePrompt(t *testing.T) {
	got := nlp.NormalizePrompt("  Every 5 MIN   check ETH ")
	assert.Equal(t, "every 5 minute check eth", got)
}

func TestNegationScan(t *testing.T) {
	negated, ratio := nlp.NegationScan("don't swap tokens")
	assert.True(t, negated)
	assert.Greater(t, ratio, 0.4)

	negated, _ = nlp.NegationScan("Every 5 minutes check ETH price and alert when it drops below $3000")
	assert.False(t, negated)
}

func TestNegationWindowIsBounded(t *testing.T) {
	// One marker poisons only the next five content words; with many
	// trailing content words the ratio falls below the threshold.
	text := "never mind alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima mike november oscar papa quebec romeo sierra"
	negated, ratio := nlp.NegationScan(text)
	assert.False(t, negated)
	assert.InDelta(t, 5.0/20.0, ratio, 0.01)
}

func TestNegationEmptyPrompt(t *testing.T) {
	negated, ratio := nlp.NegationScan("")
	assert.False(t, negated)
	assert.Zero(t, ratio)
}

func TestDocMatchTiers(t *testing.T) {
	doc := nlp.NewDoc("checking the eth price every morning")

	assert.Equal(t, nlp.TierExact, doc.Match("price"))
	assert.Equal(t, nlp.TierExact, doc.Match("eth price")) // substring inclusion spans words
	assert.Equal(t, nlp.TierStem, doc.Match("checks"))
	assert.Equal(t, nlp.TierStem, doc.Match("prices"))
	assert.Equal(t, nlp.TierNone, doc.Match("webhook"))
}

func TestDocMatchFuzzyTier(t *testing.T) {
	doc := nlp.NewDoc("set up a webook for deposits")
	assert.Equal(t, nlp.TierFuzzy, doc.Match("webhook"))
}

func TestDocMatchAny(t *testing.T) {
	doc := nlp.NewDoc("alert me when the price drops")
	assert.Equal(t, nlp.TierExact, doc.MatchAny([]string{"webhook", "price"}))
	assert.Equal(t, nlp.TierNone, doc.MatchAny([]string{"webhook", "contract"}))
}

func TestContainsWord(t *testing.T) {
	tokens := nlp.Tokenize("swap eth for usdc on base")
	assert.True(t, nlp.ContainsWord(tokens, "eth"))
	assert.False(t, nlp.ContainsWord(tokens, "ether"))
}
