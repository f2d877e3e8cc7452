package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chainweave/forge/eventbus"
	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/sandbox"
	"github.com/chainweave/forge/schema"
	"github.com/chainweave/forge/storage"
)

// Execution bounds.
const (
	// Timeout bounds one whole pipeline execution. The clock starts after
	// the pipeline row is loaded and the execution row exists, so slow
	// bookkeeping stretches the wall time a little beyond it.
	Timeout = 300 * time.Second

	// StepTimeout caps a single step attempt, shortened to whatever is left
	// of the pipeline budget.
	StepTimeout = 60 * time.Second

	// StepRetryDelay separates the two attempts of a failing step.
	StepRetryDelay = 2 * time.Second

	// minRetryBudget is the least useful run time a retry needs beyond its
	// delay; closer to the deadline than that, the retry is not scheduled.
	minRetryBudget = 5 * time.Second

	// maxStepAttempts is the initial try plus one retry.
	maxStepAttempts = 2
)

// Execution preconditions surfaced to the API layer.
var (
	ErrPipelineNotFound    = errors.New("pipeline not found")
	ErrPipelineDeactivated = errors.New("pipeline deactivated")
)

// StepResult records one executed step. Skipped steps (after a failure or
// past the deadline) never appear here.
type StepResult struct {
	StepID     string         `json:"stepId"`
	WorkflowID string         `json:"workflowId"`
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	Attempts   int            `json:"attempts"`
	DurationMS int64          `json:"durationMs"`
}

// Result is the outcome of one pipeline execution, mirroring the durable
// history row.
type Result struct {
	ExecutionID string         `json:"executionId"`
	PipelineID  string         `json:"pipelineId"`
	Status      string         `json:"status"`
	StepResults []StepResult   `json:"stepResults"`
	FinalOutput map[string]any `json:"finalOutput"`
	DurationMS  int64          `json:"durationMs"`
}

// executionStore is the slice of *storage.Store the executor needs.
type executionStore interface {
	GetPipeline(ctx context.Context, id string) (*storage.Pipeline, error)
	GetWorkflows(ctx context.Context, ids []string) (map[string]*storage.Workflow, error)
	CreatePipelineExecution(ctx context.Context, e *storage.PipelineExecution) error
	FinishPipelineExecution(ctx context.Context, id, status, stepResults, finalOutput string, durationMs int64) error
	BumpPipelineExecutionCount(ctx context.Context, id string) error
}

// stepSimulator is the slice of *sandbox.Runner the executor needs. Every
// call takes the simulation semaphore; the executor itself never does, so a
// wide pipeline cannot starve single simulations by holding slots idle.
type stepSimulator interface {
	Simulate(ctx context.Context, source, configJSON string) (*sandbox.Result, error)
}

// Executor runs pipelines: position groups in parallel, groups in order,
// outputs flowing forward through input mappings.
type Executor struct {
	store    executionStore
	bus      *eventbus.Bus
	sim      stepSimulator
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewExecutor builds an Executor over the shared store, bus and sandbox.
func NewExecutor(store executionStore, bus *eventbus.Bus, sim stepSimulator,
	recorder *metrics.Recorder, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:    store,
		bus:      bus,
		sim:      sim,
		recorder: recorder,
		logger:   logger.With("component", "pipeline"),
	}
}

// pipelineEvent is the payload of pipeline_started and the terminal events.
type pipelineEvent struct {
	PipelineID  string         `json:"pipelineId"`
	ExecutionID string         `json:"executionId"`
	Name        string         `json:"name,omitempty"`
	Status      string         `json:"status,omitempty"`
	FinalOutput map[string]any `json:"finalOutput,omitempty"`
	DurationMS  int64          `json:"durationMs,omitempty"`
}

// stepEvent is the payload of the per-step events.
type stepEvent struct {
	PipelineID  string         `json:"pipelineId"`
	ExecutionID string         `json:"executionId"`
	StepID      string         `json:"stepId"`
	WorkflowID  string         `json:"workflowId"`
	Output      map[string]any `json:"output,omitempty"`
	Error       string         `json:"error,omitempty"`
	Attempts    int            `json:"attempts,omitempty"`
	DurationMS  int64          `json:"durationMs,omitempty"`
}

// Execute runs one pipeline to completion and returns its result. The
// deactivated and not-found preconditions come back as sentinel errors;
// anything else returned here means the run itself died, in which case the
// execution row has already been flipped to failed on a best-effort basis.
// A pipeline whose steps fail is not an error: that outcome is a Result
// with status failed or partial.
func (e *Executor) Execute(ctx context.Context, pipelineID string, triggerInput map[string]any) (*Result, error) {
	p, err := e.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrPipelineNotFound
		}
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	if !p.Active {
		return nil, ErrPipelineDeactivated
	}

	steps, err := ParseSteps(p.Steps)
	if err != nil {
		return nil, fmt.Errorf("pipeline %s: %w", p.ID, err)
	}

	if triggerInput == nil {
		triggerInput = map[string]any{}
	}
	triggerJSON, err := json.Marshal(triggerInput)
	if err != nil {
		return nil, fmt.Errorf("encode trigger input: %w", err)
	}

	exec := &storage.PipelineExecution{
		ID:           uuid.NewString(),
		PipelineID:   p.ID,
		Status:       storage.PipelineStatusRunning,
		TriggerInput: string(triggerJSON),
	}
	if err := e.store.CreatePipelineExecution(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution row: %w", err)
	}

	t0 := time.Now()
	res, err := e.run(ctx, p, steps, exec.ID, triggerInput)
	if err != nil {
		// The row must not stay "running" when we know the run died. The
		// caller sees the original error regardless of how this write goes.
		elapsed := time.Since(t0)
		bg := context.WithoutCancel(ctx)
		if ferr := e.store.FinishPipelineExecution(bg, exec.ID,
			storage.PipelineStatusFailed, "[]", "null", elapsed.Milliseconds()); ferr != nil {
			e.logger.Error("could not mark dead execution failed",
				"execution", exec.ID, "error", ferr)
		}
		e.recorder.RecordPipeline(storage.PipelineStatusFailed, elapsed)
		return nil, err
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, p *storage.Pipeline, steps []StepConfig, execID string, trigger map[string]any) (*Result, error) {
	// History rows and events outlive request cancellation and the pipeline
	// deadline; only step attempts run under the deadline.
	bg := context.WithoutCancel(ctx)

	if _, err := e.bus.Emit(bg, eventbus.TypePipelineStarted, pipelineEvent{
		PipelineID:  p.ID,
		ExecutionID: execID,
		Name:        p.Name,
	}); err != nil {
		return nil, err
	}

	start := time.Now()
	runCtx, cancel := context.WithDeadline(ctx, start.Add(Timeout))
	defer cancel()
	deadline, _ := runCtx.Deadline()

	workflows, err := e.store.GetWorkflows(runCtx, workflowIDs(steps))
	if err != nil {
		return nil, fmt.Errorf("load pipeline workflows: %w", err)
	}
	inputDocs, outputDocs := parseSchemas(workflows, e.logger)

	var (
		results     []StepResult
		stepOutputs = make(map[string]map[string]any)
		failed      bool
	)
	for _, group := range GroupByPosition(steps) {
		if failed {
			break
		}
		if !time.Now().Before(deadline) {
			failed = true
			e.logger.Warn("pipeline deadline reached, skipping remaining groups",
				"pipeline", p.ID, "execution", execID)
			break
		}

		groupResults := make([]StepResult, len(group))
		var g errgroup.Group
		for i, st := range group {
			g.Go(func() error {
				groupResults[i] = e.runStep(runCtx, bg, stepTask{
					pipelineID: p.ID,
					execID:     execID,
					step:       st,
					workflow:   workflows[st.WorkflowID],
					inputDoc:   inputDocs[st.WorkflowID],
					outputDoc:  outputDocs[st.WorkflowID],
					trigger:    trigger,
					outputs:    stepOutputs,
					deadline:   deadline,
				})
				return nil
			})
		}
		_ = g.Wait()

		// Outputs become visible to mappings only at the group boundary,
		// after every step event of the group is out.
		for _, r := range groupResults {
			if r.Success {
				stepOutputs[r.StepID] = r.Output
			} else {
				failed = true
			}
		}
		results = append(results, groupResults...)
	}

	succeeded := 0
	var finalOutput map[string]any
	for _, r := range results {
		if r.Success {
			succeeded++
			finalOutput = r.Output
		}
	}
	status := storage.PipelineStatusPartial
	switch succeeded {
	case len(steps):
		status = storage.PipelineStatusCompleted
	case 0:
		status = storage.PipelineStatusFailed
	}

	stepJSON, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("encode step results: %w", err)
	}
	finalJSON, err := json.Marshal(finalOutput)
	if err != nil {
		return nil, fmt.Errorf("encode final output: %w", err)
	}
	duration := time.Since(start).Milliseconds()

	// Durable first: the history row exists before anyone hears about it.
	if err := e.store.FinishPipelineExecution(bg, execID, status,
		string(stepJSON), string(finalJSON), duration); err != nil {
		return nil, fmt.Errorf("finish pipeline execution: %w", err)
	}

	// Advisory counter; losing it costs nothing.
	go func() {
		if err := e.store.BumpPipelineExecutionCount(bg, p.ID); err != nil {
			e.logger.Warn("execution count bump failed", "pipeline", p.ID, "error", err)
		}
	}()

	terminal := eventbus.TypePipelineCompleted
	if status == storage.PipelineStatusFailed {
		terminal = eventbus.TypePipelineFailed
	}
	if _, err := e.bus.Emit(bg, terminal, pipelineEvent{
		PipelineID:  p.ID,
		ExecutionID: execID,
		Status:      status,
		FinalOutput: finalOutput,
		DurationMS:  duration,
	}); err != nil {
		return nil, err
	}

	e.recorder.RecordPipeline(status, time.Since(start))
	e.logger.Info("pipeline execution finished",
		"pipeline", p.ID,
		"execution", execID,
		"status", status,
		"steps", len(results),
		"duration_ms", duration)

	return &Result{
		ExecutionID: execID,
		PipelineID:  p.ID,
		Status:      status,
		StepResults: results,
		FinalOutput: finalOutput,
		DurationMS:  duration,
	}, nil
}

// stepTask bundles everything one step needs; outputs is read-only while
// the step's group is in flight.
type stepTask struct {
	pipelineID string
	execID     string
	step       StepConfig
	workflow   *storage.Workflow
	inputDoc   *schema.Document
	outputDoc  *schema.Document
	trigger    map[string]any
	outputs    map[string]map[string]any
	deadline   time.Time
}

func (e *Executor) runStep(ctx, bg context.Context, t stepTask) StepResult {
	res := StepResult{StepID: t.step.ID, WorkflowID: t.step.WorkflowID}
	start := time.Now()

	if _, err := e.bus.Emit(bg, eventbus.TypePipelineStepStarted, stepEvent{
		PipelineID:  t.pipelineID,
		ExecutionID: t.execID,
		StepID:      t.step.ID,
		WorkflowID:  t.step.WorkflowID,
	}); err != nil {
		res.Error = fmt.Sprintf("emit step event: %v", err)
		return e.finishStep(bg, t, res, start)
	}

	if t.workflow == nil {
		res.Error = fmt.Sprintf("workflow %s not found", t.step.WorkflowID)
		return e.finishStep(bg, t, res, start)
	}

	input := computeInput(t.step, t.trigger, t.outputs, t.inputDoc)
	configJSON, err := json.Marshal(mergeConfig(t.workflow.Config, input, e.logger))
	if err != nil {
		res.Error = fmt.Sprintf("encode step input: %v", err)
		return e.finishStep(bg, t, res, start)
	}

	for attempt := 1; attempt <= maxStepAttempts; attempt++ {
		res.Attempts = attempt

		remaining := time.Until(t.deadline)
		if remaining <= 0 {
			res.Error = "pipeline deadline exceeded"
			break
		}

		attemptCtx, cancel := context.WithTimeout(ctx, min(StepTimeout, remaining))
		sim, err := e.sim.Simulate(attemptCtx, t.workflow.Code, string(configJSON))
		cancel()

		switch {
		case err != nil:
			res.Error = err.Error()
		case sim.Success:
			res.Success = true
			res.Error = ""
			res.Output = syntheticOutput(t.outputDoc, sim.Success)
		default:
			res.Error = simulationError(sim.Errors)
		}
		if res.Success || attempt == maxStepAttempts {
			break
		}
		if time.Until(t.deadline) < StepRetryDelay+minRetryBudget {
			break
		}
		select {
		case <-time.After(StepRetryDelay):
		case <-ctx.Done():
			res.Error = ctx.Err().Error()
		}
		if ctx.Err() != nil {
			break
		}
	}

	return e.finishStep(bg, t, res, start)
}

// finishStep stamps the duration and emits the step's terminal event. A
// lost event never flips the step's outcome; history is what counts.
func (e *Executor) finishStep(bg context.Context, t stepTask, res StepResult, start time.Time) StepResult {
	res.DurationMS = time.Since(start).Milliseconds()

	typ := eventbus.TypePipelineStepCompleted
	ev := stepEvent{
		PipelineID:  t.pipelineID,
		ExecutionID: t.execID,
		StepID:      t.step.ID,
		WorkflowID:  t.step.WorkflowID,
		Attempts:    res.Attempts,
		DurationMS:  res.DurationMS,
	}
	if res.Success {
		ev.Output = res.Output
	} else {
		typ = eventbus.TypePipelineStepFailed
		ev.Error = res.Error
	}
	if _, err := e.bus.Emit(bg, typ, ev); err != nil {
		e.logger.Warn("step event lost",
			"execution", t.execID, "step", t.step.ID, "error", err)
	}

	e.logger.Debug("pipeline step finished",
		"execution", t.execID,
		"step", t.step.ID,
		"success", res.Success,
		"attempts", res.Attempts)
	return res
}

// computeInput resolves a step's input document. Without a mapping the
// trigger payload passes through unchanged. With one, each target field is
// read from the trigger or a prior step's published output; an unresolvable
// source leaves the field unset. When the workflow declares an input schema
// whose type disagrees with the resolved value, the value is coerced.
func computeInput(step StepConfig, trigger map[string]any, outputs map[string]map[string]any, inputDoc *schema.Document) map[string]any {
	if step.InputMapping == nil {
		return maps.Clone(trigger)
	}

	input := make(map[string]any, len(step.InputMapping))
	for target, src := range step.InputMapping {
		var (
			v  any
			ok bool
		)
		if src.Source == sourceTrigger {
			v, ok = trigger[src.Field]
		} else if out, found := outputs[src.Source]; found {
			v, ok = out[src.Field]
		}
		if !ok {
			continue
		}
		if inputDoc != nil {
			if prop, has := inputDoc.Properties[target]; has && jsonType(v) != prop.Type {
				v = schema.CoerceValue(v, prop.Type)
			}
		}
		input[target] = v
	}
	return input
}

// mergeConfig overlays the computed input onto the workflow's configured
// defaults; input wins. A config that is not a JSON object contributes
// nothing.
func mergeConfig(configJSON string, input map[string]any, logger *slog.Logger) map[string]any {
	merged := make(map[string]any)
	if strings.TrimSpace(configJSON) != "" {
		if err := json.Unmarshal([]byte(configJSON), &merged); err != nil {
			logger.Debug("workflow config is not an object, ignoring", "error", err)
			merged = make(map[string]any)
		}
	}
	maps.Copy(merged, input)
	return merged
}

// syntheticOutput builds a step's output from the workflow's output schema.
// Real step execution happens on deployed infrastructure; the simulator only
// proves the workflow runs, so outputs are stand-ins typed by the schema.
func syntheticOutput(doc *schema.Document, simSuccess bool) map[string]any {
	out := make(map[string]any)
	if doc == nil {
		return out
	}
	for name, prop := range doc.Properties {
		switch prop.Type {
		case "string":
			base := prop.Description
			if base == "" {
				base = name
			}
			out[name] = base + "_value"
		case "number":
			out[name] = 42
		case "integer":
			out[name] = 0
		case "boolean":
			out[name] = simSuccess
		default:
			out[name] = nil
		}
	}
	return out
}

// parseSchemas decodes the stored schema documents per workflow id. A
// malformed document is treated as absent: the pipeline still runs, just
// without coercion or synthetic fields for that workflow.
func parseSchemas(workflows map[string]*storage.Workflow, logger *slog.Logger) (inputs, outputs map[string]*schema.Document) {
	inputs = make(map[string]*schema.Document)
	outputs = make(map[string]*schema.Document)
	for id, w := range workflows {
		if w.InputSchema != "" {
			if doc, err := schema.Parse([]byte(w.InputSchema)); err == nil {
				inputs[id] = doc
			} else {
				logger.Debug("unusable input schema", "workflow", id, "error", err)
			}
		}
		if w.OutputSchema != "" {
			if doc, err := schema.Parse([]byte(w.OutputSchema)); err == nil {
				outputs[id] = doc
			} else {
				logger.Debug("unusable output schema", "workflow", id, "error", err)
			}
		}
	}
	return inputs, outputs
}

// jsonType names the JSON type of a decoded value. Synthetic integer
// outputs fold into the number family, like decoding would produce.
func jsonType(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64, int, int64, json.Number:
		return "number"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case nil:
		return "null"
	default:
		return ""
	}
}

func simulationError(errs []string) string {
	if len(errs) == 0 {
		return "simulation failed"
	}
	return strings.Join(errs, "; ")
}
