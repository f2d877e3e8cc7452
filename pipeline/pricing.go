package pipeline

import (
	"fmt"

	"github.com/chainweave/forge/storage"
)

// StepPrice is the cost contribution of one step.
type StepPrice struct {
	StepID     string `json:"stepId"`
	WorkflowID string `json:"workflowId"`
	Name       string `json:"name"`
	PriceUSDC  int64  `json:"priceUsdc"`
}

// Quote is the price breakdown of a pipeline. All amounts are 6-decimal
// USDC integers; a workflow used by two steps is charged twice.
type Quote struct {
	TotalUSDC int64       `json:"totalUsdc"`
	Steps     []StepPrice `json:"steps"`
	Warnings  []string    `json:"warnings,omitempty"`
}

// Price sums the per-step workflow prices. A step whose workflow row is
// missing prices at zero and adds a warning instead of failing, so quotes
// stay available for pipelines referencing since-deleted workflows.
func Price(steps []StepConfig, workflows map[string]*storage.Workflow) Quote {
	q := Quote{Steps: make([]StepPrice, 0, len(steps))}
	for _, s := range steps {
		sp := StepPrice{StepID: s.ID, WorkflowID: s.WorkflowID}
		if w, ok := workflows[s.WorkflowID]; ok {
			sp.Name = w.Name
			sp.PriceUSDC = w.PriceUSDC
		} else {
			q.Warnings = append(q.Warnings,
				fmt.Sprintf("workflow %s not found, step %s priced at 0", s.WorkflowID, s.ID))
		}
		q.TotalUSDC += sp.PriceUSDC
		q.Steps = append(q.Steps, sp)
	}
	return q
}
