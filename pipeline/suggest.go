package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/chainweave/forge/cache"
	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/schema"
	"github.com/chainweave/forge/storage"
)

const (
	// suggestTTL is how long one computed suggestion list serves all
	// callers; the cache holds a single entry under a fixed key.
	suggestTTL      = 5 * time.Minute
	suggestCacheKey = "pipeline-suggestions"

	// maxSuggestWorkflows bounds the quadratic pair scan.
	maxSuggestWorkflows = 50
)

// Suggestion proposes feeding one published workflow's output into
// another's input. MatchedFields carries the field pairs ordered by
// descending confidence.
type Suggestion struct {
	SourceWorkflowID string              `json:"sourceWorkflowId"`
	SourceName       string              `json:"sourceName"`
	TargetWorkflowID string              `json:"targetWorkflowId"`
	TargetName       string              `json:"targetName"`
	Score            float64             `json:"score"`
	Compatible       bool                `json:"compatible"`
	MatchedFields    []schema.FieldMatch `json:"matchedFields,omitempty"`
}

// publishedLister is the slice of *storage.Store the suggester needs.
type publishedLister interface {
	ListPublishedWorkflows(ctx context.Context, limit int) ([]*storage.Workflow, error)
}

// Suggester scores published workflow pairs for pipeline composition.
type Suggester struct {
	store  publishedLister
	bus    *eventbus.Bus
	cache  *cache.Cache[[]Suggestion]
	logger *slog.Logger
}

// NewSuggester builds a Suggester over the shared store and bus.
func NewSuggester(store publishedLister, bus *eventbus.Bus, logger *slog.Logger) *Suggester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suggester{
		store:  store,
		bus:    bus,
		cache:  cache.New[[]Suggestion](1, suggestTTL),
		logger: logger.With("component", "suggest"),
	}
}

// Suggest returns compatibility-scored pairs of published workflows,
// recomputing at most once per TTL window. Partially compatible pairs are
// included so the mapping hints can guide manual wiring; pairs without a
// single field match are not. A recompute emits a discovery event; losing
// that event does not fail the request.
func (s *Suggester) Suggest(ctx context.Context) ([]Suggestion, error) {
	if cached, ok := s.cache.Get(suggestCacheKey); ok {
		return cached, nil
	}

	rows, err := s.store.ListPublishedWorkflows(ctx, maxSuggestWorkflows)
	if err != nil {
		return nil, fmt.Errorf("list published workflows: %w", err)
	}

	type candidate struct {
		w      *storage.Workflow
		input  *schema.Document
		output *schema.Document
	}
	cands := make([]candidate, 0, len(rows))
	for _, w := range rows {
		c := candidate{w: w}
		if w.InputSchema != "" {
			if doc, err := schema.Parse([]byte(w.InputSchema)); err == nil {
				c.input = doc
			}
		}
		if w.OutputSchema != "" {
			if doc, err := schema.Parse([]byte(w.OutputSchema)); err == nil {
				c.output = doc
			}
		}
		cands = append(cands, c)
	}

	sugs := []Suggestion{}
	for _, src := range cands {
		if src.output == nil {
			continue
		}
		for _, tgt := range cands {
			if tgt.input == nil || src.w.ID == tgt.w.ID {
				continue
			}
			comp := schema.CheckCompatibility(src.output, tgt.input)
			if comp.Score <= 0 || len(comp.MatchedFields) == 0 {
				continue
			}
			sugs = append(sugs, Suggestion{
				SourceWorkflowID: src.w.ID,
				SourceName:       src.w.Name,
				TargetWorkflowID: tgt.w.ID,
				TargetName:       tgt.w.Name,
				Score:            comp.Score,
				Compatible:       comp.Compatible,
				MatchedFields:    comp.Suggestions,
			})
		}
	}
	sort.SliceStable(sugs, func(i, j int) bool {
		if sugs[i].Score != sugs[j].Score {
			return sugs[i].Score > sugs[j].Score
		}
		if sugs[i].SourceWorkflowID != sugs[j].SourceWorkflowID {
			return sugs[i].SourceWorkflowID < sugs[j].SourceWorkflowID
		}
		return sugs[i].TargetWorkflowID < sugs[j].TargetWorkflowID
	})

	s.cache.Set(suggestCacheKey, sugs)

	if _, err := s.bus.Emit(ctx, eventbus.TypeDiscovery, map[string]any{
		"workflows":   len(rows),
		"suggestions": len(sugs),
	}); err != nil {
		s.logger.Warn("discovery event lost", "error", err)
	}

	s.logger.Info("recomputed pipeline suggestions",
		"workflows", len(rows), "suggestions", len(sugs))
	return sugs, nil
}
