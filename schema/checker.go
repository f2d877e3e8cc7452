package schema

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Confidence levels assigned by the field matcher.
const (
	ConfidenceExact  = 1.0
	ConfidenceFuzzy  = 0.8
	ConfidenceCoerce = 0.5
)

// fuzzyNameBudget is the edit distance allowed between field names on the
// fuzzy tier.
const fuzzyNameBudget = 3

// FieldMatch pairs one source output field with one target input field.
type FieldMatch struct {
	SourceField string  `json:"sourceField"`
	TargetField string  `json:"targetField"`
	SourceType  string  `json:"sourceType"`
	TargetType  string  `json:"targetType"`
	Confidence  float64 `json:"confidence"`
}

// Compatibility reports how well an output document feeds an input
// document. Score counts required target fields only; optional fields may
// consume a source but never move the score. Suggestions holds the same
// matches as MatchedFields reordered by descending confidence, ties keeping
// their original order.
type Compatibility struct {
	Compatible        bool         `json:"compatible"`
	Score             float64      `json:"score"`
	MatchedFields     []FieldMatch `json:"matchedFields"`
	UnmatchedRequired []string     `json:"unmatchedRequired"`
	Suggestions       []FieldMatch `json:"suggestions"`
}

// CheckCompatibility matches output fields against input fields in three
// tiers: identical name and type (1.0), compatible type with a field name
// within three edits (0.8), compatible type alone (0.5). Each source field
// feeds at most one target. Required targets are resolved before optional
// ones so an optional field cannot steal the only viable source; within
// each class targets are processed in name order to keep the result
// deterministic.
func CheckCompatibility(output, input *Document) Compatibility {
	targets := orderedTargets(input)

	sourceNames := make([]string, 0, len(output.Properties))
	for name := range output.Properties {
		sourceNames = append(sourceNames, name)
	}
	sort.Strings(sourceNames)
	used := make(map[string]bool, len(sourceNames))

	var (
		matched   []FieldMatch
		unmatched []string
	)
	matchedRequired := 0

	for _, tgt := range targets {
		m, ok := matchField(tgt, input.Properties[tgt].Type, sourceNames, output.Properties, used)
		if ok {
			used[m.SourceField] = true
			matched = append(matched, m)
			if input.IsRequired(tgt) {
				matchedRequired++
			}
			continue
		}
		if input.IsRequired(tgt) {
			unmatched = append(unmatched, tgt)
		}
	}

	// No required inputs means anything feeds this document.
	score := 1.0
	if total := len(input.Required); total > 0 {
		score = float64(matchedRequired) / float64(total)
	}

	suggestions := make([]FieldMatch, len(matched))
	copy(suggestions, matched)
	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})

	return Compatibility{
		Compatible:        score > 0 && len(unmatched) == 0,
		Score:             score,
		MatchedFields:     matched,
		UnmatchedRequired: unmatched,
		Suggestions:       suggestions,
	}
}

// orderedTargets lists the input fields to resolve: required names first,
// then optional property names, each sorted. Required names without a
// property entry are kept; they can never match and must surface as
// unmatched.
func orderedTargets(input *Document) []string {
	required := make([]string, len(input.Required))
	copy(required, input.Required)
	sort.Strings(required)

	isRequired := make(map[string]bool, len(required))
	for _, r := range required {
		isRequired[r] = true
	}

	var optional []string
	for name := range input.Properties {
		if !isRequired[name] {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)

	return append(required, optional...)
}

// matchField resolves one target field through the three tiers. The fuzzy
// tier picks the closest source name, ties going to the alphabetically
// first.
func matchField(target, targetType string, sourceNames []string, sources map[string]Property, used map[string]bool) (FieldMatch, bool) {
	if prop, ok := sources[target]; ok && !used[target] && prop.Type == targetType {
		return FieldMatch{
			SourceField: target,
			TargetField: target,
			SourceType:  prop.Type,
			TargetType:  targetType,
			Confidence:  ConfidenceExact,
		}, true
	}

	bestName, bestDist := "", fuzzyNameBudget+1
	for _, name := range sourceNames {
		if used[name] || !compatibleType(sources[name].Type, targetType) {
			continue
		}
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(target))
		if d < bestDist {
			bestName, bestDist = name, d
		}
	}
	if bestName != "" {
		return FieldMatch{
			SourceField: bestName,
			TargetField: target,
			SourceType:  sources[bestName].Type,
			TargetType:  targetType,
			Confidence:  ConfidenceFuzzy,
		}, true
	}

	for _, name := range sourceNames {
		if used[name] || !compatibleType(sources[name].Type, targetType) {
			continue
		}
		return FieldMatch{
			SourceField: name,
			TargetField: target,
			SourceType:  sources[name].Type,
			TargetType:  targetType,
			Confidence:  ConfidenceCoerce,
		}, true
	}
	return FieldMatch{}, false
}

// compatibleType reports whether a source type can feed a target type,
// directly or through runtime coercion. Integer folds into the number
// family.
func compatibleType(src, tgt string) bool {
	s, t := normalizeType(src), normalizeType(tgt)
	if s == "" || t == "" {
		return false
	}
	if s == t {
		return true
	}
	switch s + ">" + t {
	case "number>string", "string>number",
		"boolean>string", "string>boolean",
		"boolean>number", "number>boolean":
		return true
	}
	return false
}

func normalizeType(t string) string {
	if t == "integer" {
		return "number"
	}
	return t
}
