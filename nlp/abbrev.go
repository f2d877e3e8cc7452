package nlp

import (
	"regexp"
	"sort"
	"strings"
)

// abbreviations is the fixed expansion table. Chain and token tickers (eth,
// btc, arb) are deliberately absent; those are vocabulary, not shorthand.
var abbreviations = map[string]string{
	"min":  "minute",
	"mins": "minutes",
	"hr":   "hour",
	"hrs":  "hours",
	"sec":  "second",
	"secs": "seconds",
	"wk":   "week",
	"tx":   "transaction",
	"txs":  "transactions",
	"txn":  "transaction",
	"addr": "address",
	"bal":  "balance",
	"msg":  "message",
	"avg":  "average",
	"info": "information",
}

var abbrevPatterns = buildAbbrevPatterns()

type abbrevPattern struct {
	re          *regexp.Regexp
	replacement string
}

func buildAbbrevPatterns() []abbrevPattern {
	keys := make([]string, 0, len(abbreviations))
	for k := range abbreviations {
		keys = append(keys, k)
	}
	// Longest keys first so "mins" wins over "min".
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	patterns := make([]abbrevPattern, 0, len(keys))
	for _, k := range keys {
		patterns = append(patterns, abbrevPattern{
			re:          regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k) + `\b`),
			replacement: abbreviations[k],
		})
	}
	return patterns
}

// ExpandAbbreviations rewrites known shorthand ("min", "tx", "addr") into
// full words on word boundaries, case-insensitively. The rest of the text is
// untouched.
func ExpandAbbreviations(text string) string {
	out := text
	for _, p := range abbrevPatterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	return out
}

// NormalizePrompt applies the standard pre-parse normalization: abbreviation
// expansion followed by lowercasing and whitespace collapse.
func NormalizePrompt(text string) string {
	expanded := ExpandAbbreviations(text)
	return strings.Join(strings.Fields(strings.ToLower(expanded)), " ")
}
