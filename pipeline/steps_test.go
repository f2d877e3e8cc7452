package pipeline_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/pipeline"
)

func TestParseSteps(t *testing.T) {
	steps, err := pipeline.ParseSteps(`[
		{"id":"fetch","workflowId":"wf-1","position":0},
		{"id":"alert","workflowId":"wf-2","position":1,
		 "inputMapping":{"value":{"source":"fetch","field":"price"}}}
	]`)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, "fetch", steps[0].ID)
	assert.Equal(t, "wf-1", steps[0].WorkflowID)
	assert.Nil(t, steps[0].InputMapping)

	require.Contains(t, steps[1].InputMapping, "value")
	assert.Equal(t, pipeline.MappingSource{Source: "fetch", Field: "price"},
		steps[1].InputMapping["value"])
}

func TestParseStepsRejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"not json", `{{`, "decode steps"},
		{"not an array", `{"id":"a"}`, "decode steps"},
		{"empty", `[]`, "no steps"},
		{"missing id", `[{"workflowId":"w","position":0}]`, "missing id"},
		{
			"duplicate id",
			`[{"id":"a","workflowId":"w","position":0},{"id":"a","workflowId":"w","position":1}]`,
			"duplicate id",
		},
		{"missing workflow", `[{"id":"a","position":0}]`, "missing workflowId"},
		{"negative position", `[{"id":"a","workflowId":"w","position":-1}]`, "negative position"},
		{
			"self reference",
			`[{"id":"a","workflowId":"w","position":0,"inputMapping":{"x":{"source":"a","field":"y"}}}]`,
			"its own output",
		},
		{
			"unknown source",
			`[{"id":"a","workflowId":"w","position":0,"inputMapping":{"x":{"source":"ghost","field":"y"}}}]`,
			"unknown step",
		},
		{
			"mapping without field",
			`[{"id":"a","workflowId":"w","position":0,"inputMapping":{"x":{"source":"trigger"}}}]`,
			"no source field",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pipeline.ParseSteps(tt.raw)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseStepsAllowsForwardReference(t *testing.T) {
	// A mapping may name a step that runs later; it resolves to nothing at
	// runtime but is structurally valid.
	_, err := pipeline.ParseSteps(`[
		{"id":"a","workflowId":"w","position":0,
		 "inputMapping":{"x":{"source":"b","field":"y"}}},
		{"id":"b","workflowId":"w","position":1}
	]`)
	assert.NoError(t, err)
}

func TestGroupByPosition(t *testing.T) {
	steps := []pipeline.StepConfig{
		{ID: "c", Position: 1},
		{ID: "a", Position: 0},
		{ID: "b", Position: 0},
		{ID: "d", Position: 5},
	}

	groups := pipeline.GroupByPosition(steps)

	require.Len(t, groups, 3)
	assert.Equal(t, "a", groups[0][0].ID)
	assert.Equal(t, "b", groups[0][1].ID)
	assert.Equal(t, "c", groups[1][0].ID)
	assert.Equal(t, "d", groups[2][0].ID)
}
