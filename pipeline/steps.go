// Package pipeline chains stored workflows into multi-step executions. A
// pipeline definition is an array of step configs grouped by position; the
// executor runs each position group in parallel, feeds outputs forward
// through input mappings, and records every run as durable history with a
// matching event stream.
package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
)

// sourceTrigger is the reserved mapping source naming the trigger payload.
const sourceTrigger = "trigger"

// MappingSource names where one input field comes from: the trigger payload
// or a prior step's output.
type MappingSource struct {
	Source string `json:"source"`
	Field  string `json:"field"`
}

// StepConfig is one step of a pipeline definition. Steps sharing a Position
// run in parallel; positions run in ascending order. When InputMapping is
// nil the trigger input is forwarded unchanged.
type StepConfig struct {
	ID           string                   `json:"id"`
	WorkflowID   string                   `json:"workflowId"`
	Position     int                      `json:"position"`
	InputMapping map[string]MappingSource `json:"inputMapping,omitempty"`
}

// ParseSteps decodes and validates a steps JSON document. It rejects empty
// pipelines, duplicate or blank step ids, negative positions, and input
// mappings whose source is neither "trigger" nor a step id of the same
// pipeline. Mapping a step to its own output is rejected; mapping to a peer
// that runs later parses fine and resolves to nothing at runtime.
func ParseSteps(raw string) ([]StepConfig, error) {
	var steps []StepConfig
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil, fmt.Errorf("decode steps: %w", err)
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline has no steps")
	}

	ids := make(map[string]bool, len(steps))
	for i, s := range steps {
		switch {
		case s.ID == "":
			return nil, fmt.Errorf("step %d: missing id", i)
		case ids[s.ID]:
			return nil, fmt.Errorf("step %q: duplicate id", s.ID)
		case s.WorkflowID == "":
			return nil, fmt.Errorf("step %q: missing workflowId", s.ID)
		case s.Position < 0:
			return nil, fmt.Errorf("step %q: negative position", s.ID)
		}
		ids[s.ID] = true
	}

	for _, s := range steps {
		for target, src := range s.InputMapping {
			switch {
			case target == "":
				return nil, fmt.Errorf("step %q: mapping with empty target field", s.ID)
			case src.Field == "":
				return nil, fmt.Errorf("step %q: mapping %q has no source field", s.ID, target)
			case src.Source == s.ID:
				return nil, fmt.Errorf("step %q: mapping %q references its own output", s.ID, target)
			case src.Source != sourceTrigger && !ids[src.Source]:
				return nil, fmt.Errorf("step %q: mapping %q references unknown step %q", s.ID, target, src.Source)
			}
		}
	}
	return steps, nil
}

// GroupByPosition splits steps into position groups ordered by ascending
// position. Within a group the configured step order is preserved.
func GroupByPosition(steps []StepConfig) [][]StepConfig {
	byPos := make(map[int][]StepConfig)
	var positions []int
	for _, s := range steps {
		if _, seen := byPos[s.Position]; !seen {
			positions = append(positions, s.Position)
		}
		byPos[s.Position] = append(byPos[s.Position], s)
	}
	sort.Ints(positions)

	groups := make([][]StepConfig, 0, len(positions))
	for _, p := range positions {
		groups = append(groups, byPos[p])
	}
	return groups
}

func workflowIDs(steps []StepConfig) []string {
	seen := make(map[string]bool, len(steps))
	var ids []string
	for _, s := range steps {
		if !seen[s.WorkflowID] {
			seen[s.WorkflowID] = true
			ids = append(ids, s.WorkflowID)
		}
	}
	return ids
}
