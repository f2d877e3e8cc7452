// Package intent turns a free-text workflow prompt into a typed Intent
// record. Classification is deterministic and table-driven on top of the
// nlp package: trigger signals, schedule grammars, condition regexes and
// chain/source/action vocabularies. Template matching downstream consumes
// the result, so every list in Intent is ordered and duplicate-free.
package intent

import (
	"log/slog"

	"github.com/chainweave/forge/nlp"
)

// TriggerType classifies how a workflow is meant to start.
type TriggerType string

const (
	TriggerCron    TriggerType = "cron"
	TriggerHTTP    TriggerType = "http"
	TriggerEVMLog  TriggerType = "evm_log"
	TriggerUnknown TriggerType = "unknown"
)

// negationPenalty scales confidence when the prompt reads as negated.
const negationPenalty = 0.4

// Intent is the parsed form of a workflow prompt. It is a plain value and
// is never modified after Parse returns.
type Intent struct {
	TriggerType TriggerType         `json:"trigger_type"`
	Confidence  float64             `json:"confidence"`
	Schedule    string              `json:"schedule,omitempty"`
	DataSources []string            `json:"data_sources,omitempty"`
	Actions     []string            `json:"actions"`
	Chains      []string            `json:"chains"`
	Conditions  []string            `json:"conditions,omitempty"`
	Keywords    []string            `json:"keywords,omitempty"`
	Negated     bool                `json:"negated"`
	Entities    map[string][]string `json:"entities,omitempty"`
}

// Parser maps prompts to Intents. It is stateless and safe for concurrent
// use.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser that logs classification summaries at debug
// level.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger.With("component", "intent-parser")}
}

// Parse runs the full pipeline: abbreviation expansion, negation scan,
// schedule extraction, trigger classification, condition mining and the
// chain/source/action vocabulary lookups. It never fails; an
// unclassifiable prompt yields TriggerUnknown with zero confidence and the
// defaulted chains and actions.
func (p *Parser) Parse(prompt string) Intent {
	text := nlp.NormalizePrompt(prompt)
	doc := nlp.NewDoc(text)

	negated, ratio := nlp.NegationScan(text)
	schedule := ExtractSchedule(text)
	trigger, confidence := classifyTrigger(doc, schedule != "")
	if negated {
		confidence *= negationPenalty
	}

	sources, dropped, entities := collectSources(doc)

	out := Intent{
		TriggerType: trigger,
		Confidence:  confidence,
		Schedule:    schedule,
		DataSources: sources,
		Actions:     collectActions(doc),
		Chains:      collectChains(doc),
		Conditions:  extractConditions(text),
		Keywords:    nlp.Keywords(text),
		Negated:     negated,
		Entities:    entities,
	}

	p.logger.Debug("parsed intent",
		"trigger", out.TriggerType,
		"confidence", out.Confidence,
		"schedule", out.Schedule,
		"data_sources", out.DataSources,
		"dropped_sources", dropped,
		"actions", out.Actions,
		"chains", out.Chains,
		"negated", out.Negated,
		"negation_ratio", ratio,
	)
	return out
}

// tierWeight converts a lookup tier into its score contribution. Exact
// matches outweigh stem matches, stem matches outweigh fuzzy ones.
func tierWeight(t nlp.Tier) float64 {
	switch t {
	case nlp.TierExact:
		return 2.0
	case nlp.TierStem:
		return 1.5
	case nlp.TierFuzzy:
		return 1.0
	default:
		return 0
	}
}

// cronScheduleBonus is added to the cron score when a schedule expression
// was extracted; an explicit interval is stronger evidence than any single
// keyword.
const cronScheduleBonus = 3.0

// classifyTrigger scores every signal set against the prompt and returns
// the winning trigger with confidence max_score/sum_scores. Ties resolve in
// triggerOrder. A prompt matching no signal at all is TriggerUnknown with
// zero confidence.
func classifyTrigger(doc *nlp.Doc, hasSchedule bool) (TriggerType, float64) {
	scores := make(map[TriggerType]float64, len(triggerSignals))
	for tt, signals := range triggerSignals {
		var s float64
		for _, sig := range signals {
			s += tierWeight(doc.Match(sig))
		}
		scores[tt] = s
	}
	if hasSchedule {
		scores[TriggerCron] += cronScheduleBonus
	}

	var total float64
	for _, s := range scores {
		total += s
	}
	if total == 0 {
		return TriggerUnknown, 0
	}

	best, bestScore := TriggerUnknown, 0.0
	for _, tt := range triggerOrder {
		if scores[tt] > bestScore {
			best, bestScore = tt, scores[tt]
		}
	}
	return best, bestScore / total
}
