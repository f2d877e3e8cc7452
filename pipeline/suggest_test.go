package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/pipeline"
	"github.com/chainweave/forge/schema"
	"github.com/chainweave/forge/storage"
)

type publishedStore struct {
	mu        sync.Mutex
	workflows []*storage.Workflow
	listCalls int
	err       error
}

func (p *publishedStore) ListPublishedWorkflows(_ context.Context, limit int) ([]*storage.Workflow, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.err != nil {
		return nil, p.err
	}
	if len(p.workflows) > limit {
		return p.workflows[:limit], nil
	}
	return p.workflows, nil
}

func (p *publishedStore) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listCalls
}

func newSuggestWorld(t *testing.T, workflows ...*storage.Workflow) (*publishedStore, *pipeline.Suggester, *eventbus.Bus) {
	t.Helper()
	ps := &publishedStore{workflows: workflows}
	bus := eventbus.New(newMemStore(), slog.Default())
	return ps, pipeline.NewSuggester(ps, bus, slog.Default()), bus
}

func suggestFixtures() []*storage.Workflow {
	return []*storage.Workflow{
		{
			ID:   "wf-a",
			Name: "Price Feed",
			OutputSchema: `{"type":"object","properties":{
				"price":{"type":"number"},"symbol":{"type":"string"}}}`,
		},
		{
			ID:   "wf-b",
			Name: "Alert",
			InputSchema: `{"type":"object","properties":{
				"value":{"type":"number"}},"required":["value"]}`,
		},
		{
			ID:   "wf-d",
			Name: "Composite",
			InputSchema: `{"type":"object","properties":{
				"data":{"type":"object"},"value":{"type":"number"}},
				"required":["data","value"]}`,
		},
	}
}

func TestSuggestScoresPublishedPairs(t *testing.T) {
	_, sg, bus := newSuggestWorld(t, suggestFixtures()...)

	sub, err := bus.Subscribe(context.Background(), 0)
	require.NoError(t, err)

	sugs, err := sg.Suggest(context.Background())
	require.NoError(t, err)
	require.Len(t, sugs, 2)

	// Feed -> Alert resolves the single required field through coercion, so
	// the pair is fully compatible even though the match itself is weak.
	best := sugs[0]
	assert.Equal(t, "wf-a", best.SourceWorkflowID)
	assert.Equal(t, "Price Feed", best.SourceName)
	assert.Equal(t, "wf-b", best.TargetWorkflowID)
	assert.Equal(t, "Alert", best.TargetName)
	assert.Equal(t, 1.0, best.Score)
	assert.True(t, best.Compatible)
	require.Len(t, best.MatchedFields, 1)
	assert.Equal(t, "price", best.MatchedFields[0].SourceField)
	assert.Equal(t, "value", best.MatchedFields[0].TargetField)
	assert.Equal(t, schema.ConfidenceCoerce, best.MatchedFields[0].Confidence)

	// Feed -> Composite leaves the object field unmatched: half the required
	// fields resolve, so the pair surfaces as a partial hint.
	partial := sugs[1]
	assert.Equal(t, "wf-a", partial.SourceWorkflowID)
	assert.Equal(t, "wf-d", partial.TargetWorkflowID)
	assert.Equal(t, 0.5, partial.Score)
	assert.False(t, partial.Compatible)

	events := collectEvents(t, sub)
	require.Len(t, events, 1)
	assert.Equal(t, eventbus.TypeDiscovery, events[0].Type)

	var payload struct {
		Workflows   int `json:"workflows"`
		Suggestions int `json:"suggestions"`
	}
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, 3, payload.Workflows)
	assert.Equal(t, 2, payload.Suggestions)
}

func TestSuggestServesCachedResult(t *testing.T) {
	ps, sg, bus := newSuggestWorld(t, suggestFixtures()...)

	sub, err := bus.Subscribe(context.Background(), 0)
	require.NoError(t, err)

	first, err := sg.Suggest(context.Background())
	require.NoError(t, err)
	second, err := sg.Suggest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, ps.calls())

	// Only the recompute announces itself.
	assert.Len(t, collectEvents(t, sub), 1)
}

func TestSuggestSkipsUnusablePairs(t *testing.T) {
	_, sg, _ := newSuggestWorld(t,
		&storage.Workflow{
			ID:           "wf-x",
			Name:         "Snapshot",
			OutputSchema: `{"type":"object","properties":{"blob":{"type":"object"}}}`,
		},
		// Required number input: an object source scores zero.
		&storage.Workflow{
			ID:          "wf-y",
			Name:        "Counter",
			InputSchema: `{"type":"object","properties":{"num":{"type":"number"}},"required":["num"]}`,
		},
		// No required fields at all: the score is perfect by definition, but
		// with zero matched fields the pair is useless as a hint.
		&storage.Workflow{
			ID:          "wf-z",
			Name:        "Sink",
			InputSchema: `{"type":"object","properties":{"count":{"type":"number"}}}`,
		},
		// Unparseable schemas drop the document, not the workflow.
		&storage.Workflow{
			ID:           "wf-bad",
			Name:         "Broken",
			OutputSchema: `{"type":"object","properties":{"n":{"type":"decimal"}}}`,
		},
	)

	sugs, err := sg.Suggest(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sugs)
	assert.Empty(t, sugs)
}

func TestSuggestPropagatesListError(t *testing.T) {
	ps, sg, _ := newSuggestWorld(t)
	ps.err = errors.New("db closed")

	_, err := sg.Suggest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list published workflows")
}
