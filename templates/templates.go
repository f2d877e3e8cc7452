// Package templates holds the static workflow template catalog and the
// IDF-weighted matcher that picks a template for a parsed intent. The
// catalog is fixed at init; every template carries the vocabulary it is
// scored on, the capabilities it exercises, a bundled fallback source and a
// default config, and its two sibling templates used as few-shot examples.
package templates

import (
	"log/slog"
	"math"
	"strings"

	"github.com/chainweave/forge/intent"
)

// Template is one catalog entry. Source and DefaultConfig double as the
// generation fallback and as few-shot example material for siblings.
type Template struct {
	ID            int
	Name          string
	Category      string
	TriggerType   intent.TriggerType
	Keywords      []string
	Capabilities  []string
	Summary       string
	Source        string
	DefaultConfig map[string]any
	Siblings      [2]int
}

// Match is a scored catalog hit.
type Match struct {
	Template   *Template
	Confidence float64
}

// Scoring constants. A template is accepted only when it clears the score
// threshold and beats the runner-up by the ambiguity margin.
const (
	matchThreshold  = 0.30
	ambiguityMargin = 0.05
	triggerBonus    = 0.2
	triggerPenalty  = 0.15
	sourceBonusStep = 0.1
	sourceBonusCap  = 0.2
	actionBonusStep = 0.05
	actionBonusCap  = 0.1
	negationFactor  = 0.4
)

// Matcher scores intents against the catalog. Keyword weights are inverse
// document frequencies over the catalog, computed once.
type Matcher struct {
	templates []*Template
	idf       map[string]float64
	logger    *slog.Logger
}

// NewMatcher builds a matcher over the built-in catalog.
func NewMatcher(logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		templates: catalog,
		idf:       computeIDF(catalog),
		logger:    logger.With("component", "template-matcher"),
	}
}

// computeIDF assigns each catalog keyword ln(N/df). Keywords unique to one
// template weigh the most; keywords every template shares weigh nothing.
func computeIDF(ts []*Template) map[string]float64 {
	df := make(map[string]int)
	for _, t := range ts {
		for _, kw := range t.Keywords {
			df[kw]++
		}
	}
	idf := make(map[string]float64, len(df))
	n := float64(len(ts))
	for kw, d := range df {
		idf[kw] = math.Log(n / float64(d))
	}
	return idf
}

// Match returns the best-scoring template for the intent, or false when no
// template clears the threshold or the top two are too close to call.
func (m *Matcher) Match(in intent.Intent) (*Match, bool) {
	var (
		best, second *Template
		bestScore    float64
		secondScore  float64
	)
	for _, t := range m.templates {
		s := m.score(t, in)
		switch {
		case best == nil || s > bestScore:
			second, secondScore = best, bestScore
			best, bestScore = t, s
		case second == nil || s > secondScore:
			second, secondScore = t, s
		}
	}

	if best == nil || bestScore < matchThreshold {
		m.logger.Debug("no template cleared threshold", "best_score", bestScore)
		return nil, false
	}
	if second != nil && bestScore-secondScore < ambiguityMargin {
		m.logger.Debug("template match too ambiguous",
			"best", best.ID, "best_score", bestScore,
			"runner_up", second.ID, "runner_up_score", secondScore)
		return nil, false
	}

	m.logger.Debug("matched template",
		"template_id", best.ID, "name", best.Name, "confidence", bestScore)
	return &Match{Template: best, Confidence: bestScore}, true
}

// Force bypasses scoring and returns the template with confidence 1.0 iff
// the id exists.
func (m *Matcher) Force(id int) (*Match, bool) {
	t, ok := m.ByID(id)
	if !ok {
		return nil, false
	}
	return &Match{Template: t, Confidence: 1.0}, true
}

// ByID looks a template up by catalog id.
func (m *Matcher) ByID(id int) (*Template, bool) {
	for _, t := range m.templates {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// All returns the catalog in id order.
func (m *Matcher) All() []*Template {
	return m.templates
}

// Siblings returns the two few-shot relatives of a template.
func (m *Matcher) Siblings(t *Template) []*Template {
	out := make([]*Template, 0, 2)
	for _, id := range t.Siblings {
		if s, ok := m.ByID(id); ok {
			out = append(out, s)
		}
	}
	return out
}

func (m *Matcher) score(t *Template, in intent.Intent) float64 {
	var matchedIDF, totalIDF float64
	for _, kw := range t.Keywords {
		w := m.idf[kw]
		totalIDF += w
		if keywordMatched(kw, in.Keywords) {
			matchedIDF += w
		}
	}
	score := 0.0
	if totalIDF > 0 {
		score = matchedIDF / totalIDF
	}

	if in.TriggerType == t.TriggerType {
		score += triggerBonus
	} else if in.TriggerType != intent.TriggerUnknown {
		score -= triggerPenalty
	}

	score += overlapBonus(in.DataSources, t.Capabilities, sourceBonusStep, sourceBonusCap)
	score += overlapBonus(in.Actions, t.Capabilities, actionBonusStep, actionBonusCap)

	if in.Negated {
		score *= negationFactor
	}

	return clamp01(score)
}

// keywordMatched reports whether a template keyword hits any intent
// keyword: equality, template-keyword-is-prefix, or template keyword
// containing the intent keyword. Prefixing runs template-into-intent only,
// so "minute" never matches "mint"; the containment direction exists for
// multi-word template keywords.
func keywordMatched(templateKw string, intentKws []string) bool {
	for _, ik := range intentKws {
		if templateKw == ik || strings.HasPrefix(ik, templateKw) || strings.Contains(templateKw, ik) {
			return true
		}
	}
	return false
}

func overlapBonus(got, capabilities []string, step, limit float64) float64 {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	bonus := 0.0
	for _, g := range got {
		if caps[g] {
			bonus += step
		}
	}
	return math.Min(bonus, limit)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
