package intent

import (
	"regexp"
	"sort"
)

// conditionPatterns mine comparison clauses out of the prompt. Each pattern
// renders its match canonically; when two patterns overlap on the same text
// span the longer match wins, so "drops below $3000" does not also produce
// a bare "below 3000".
var conditionPatterns = []struct {
	re     *regexp.Regexp
	render func(m []string) string
}{
	{
		re:     regexp.MustCompile(`(?:drops?|falls?)\s+below\s+\$?([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "drops below " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?:rises?|goes?)\s+above\s+\$?([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "rises above " + m[1] },
	},
	{
		re:     regexp.MustCompile(`cross(?:es)?\s+\$?([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "crosses " + m[1] },
	},
	{
		re:     regexp.MustCompile(`exceeds?\s+\$?([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "exceeds " + m[1] },
	},
	{
		re:     regexp.MustCompile(`deviat(?:es|ion)\s+(?:of|by)\s+([\d.]+)\s*(?:%|percent)`),
		render: func(m []string) string { return "deviates by " + m[1] + "%" },
	},
	{
		re:     regexp.MustCompile(`(?:below|under)\s+\$([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "below " + m[1] },
	},
	{
		re:     regexp.MustCompile(`(?:above|over)\s+\$([\d][\d,]*\.?\d*)`),
		render: func(m []string) string { return "above " + m[1] },
	},
}

// extractConditions returns the conditions found in text in order of
// appearance, deduplicated. Spans fully contained in a longer match are
// discarded before rendering.
func extractConditions(text string) []string {
	type hit struct {
		start, end int
		cond       string
	}
	var hits []hit
	for _, p := range conditionPatterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, hit{
				start: loc[0],
				end:   loc[1],
				cond:  p.render(expandMatches(text, loc)),
			})
		}
	}

	kept := make([]hit, 0, len(hits))
	for _, h := range hits {
		contained := false
		for _, o := range hits {
			if o.start <= h.start && h.end <= o.end && o.end-o.start > h.end-h.start {
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].start < kept[j].start })

	seen := make(map[string]bool, len(kept))
	var out []string
	for _, h := range kept {
		if seen[h.cond] {
			continue
		}
		seen[h.cond] = true
		out = append(out, h.cond)
	}
	return out
}

func expandMatches(text string, loc []int) []string {
	m := make([]string, 0, len(loc)/2)
	for i := 0; i < len(loc); i += 2 {
		if loc[i] < 0 {
			m = append(m, "")
			continue
		}
		m = append(m, text[loc[i]:loc[i+1]])
	}
	return m
}
