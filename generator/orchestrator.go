package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainweave/forge/intent"
	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/semaphore"
	"github.com/chainweave/forge/storage"
	"github.com/chainweave/forge/templates"
	"github.com/chainweave/forge/validator"
)

// Generation bounds. The deadline covers everything after admission; a
// request that cannot get a slot fails fast instead of eating into it.
const (
	MaxConcurrent = 3
	MaxRetries    = 2
	Timeout       = 90 * time.Second

	// fallbackBudget bounds fallback validation and persistence after the
	// main deadline has already fired.
	fallbackBudget = 20 * time.Second
)

// ErrTemplateNotFound is the only error Generate surfaces to the caller as a
// user error. Everything else is absorbed into the fallback result.
var ErrTemplateNotFound = errors.New("generator: no template matches the request")

// Reasoning effort per outer attempt.
var effortLadder = [...]string{"low", "medium", "high"}

// Request is one generation job.
type Request struct {
	Prompt       string
	TemplateHint int
	OwnerAddress string
}

// Result is the outcome of a generation. Code is always non-empty; when
// Fallback is true the code came from the template catalog rather than the
// model, and Validation records whatever the fallback source scored.
// WorkflowID is empty only when even the fallback row could not be stored.
type Result struct {
	WorkflowID       string           `json:"workflowId,omitempty"`
	Code             string           `json:"code"`
	Config           string           `json:"config"`
	ConsumerContract string           `json:"consumerContract,omitempty"`
	Explanation      string           `json:"explanation,omitempty"`
	Validation       validator.Result `json:"validation"`
	Fixes            []string         `json:"fixes,omitempty"`
	Fallback         bool             `json:"fallback"`
	TemplateID       int              `json:"templateId"`
	TemplateName     string           `json:"templateName"`
	Confidence       float64          `json:"confidence"`
	Intent           intent.Intent    `json:"intent"`
	Attempts         int              `json:"attempts"`
}

// contractSource is the slice of *Adapter the orchestrator needs.
type contractSource interface {
	Generate(ctx context.Context, p GenerateParams) (*Contract, error)
}

// staticChecker is the slice of *validator.Validator the orchestrator needs.
type staticChecker interface {
	Validate(ctx context.Context, source, configJSON string) validator.Result
}

// workflowCreator is the slice of *storage.Store the orchestrator needs.
type workflowCreator interface {
	CreateWorkflow(ctx context.Context, w *storage.Workflow) error
}

// Orchestrator drives prompt → intent → template → contract → quickfix →
// validation → persisted workflow, with retries and a fallback that never
// throws.
type Orchestrator struct {
	parser    *intent.Parser
	matcher   *templates.Matcher
	adapter   contractSource
	validator staticChecker
	store     workflowCreator
	sem       *semaphore.Semaphore
	recorder  *metrics.Recorder
	logger    *slog.Logger
}

// NewOrchestrator wires the generation pipeline. The semaphore is owned by
// the orchestrator; callers share one orchestrator per process.
func NewOrchestrator(parser *intent.Parser, matcher *templates.Matcher,
	adapter contractSource, checker staticChecker, store workflowCreator,
	recorder *metrics.Recorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		parser:    parser,
		matcher:   matcher,
		adapter:   adapter,
		validator: checker,
		store:     store,
		sem:       semaphore.New(MaxConcurrent),
		recorder:  recorder,
		logger:    logger.With("component", "generator"),
	}
}

// Generate runs one generation job. It returns ErrTemplateNotFound when
// neither the hint nor the matcher yields a template; any other failure is
// converted into a fallback result.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	in := o.parser.Parse(req.Prompt)

	match, ok := o.selectTemplate(req, in)
	if !ok {
		o.recorder.RecordGeneration(metrics.OutcomeFailed, time.Since(start))
		return nil, ErrTemplateNotFound
	}

	if err := o.sem.Acquire(ctx); err != nil {
		o.recorder.RecordGeneration(metrics.OutcomeFailed, time.Since(start))
		return nil, fmt.Errorf("generation admission: %w", err)
	}
	defer o.sem.Release()

	// The deadline clock starts once a slot is held; queueing time does not
	// count against the job.
	genCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	o.logger.Info("generation started",
		"template_id", match.Template.ID,
		"template", match.Template.Name,
		"confidence", match.Confidence,
		"trigger", in.TriggerType)

	var prevErr string
	attempts := 0
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if genCtx.Err() != nil {
			break
		}
		attempts++

		// The adapter's internal red-flag loop shrinks on retries so the two
		// loops cannot multiply.
		reviewRetries := 2
		if attempt > 0 {
			reviewRetries = 1
		}

		contract, err := o.adapter.Generate(genCtx, GenerateParams{
			Prompt:        req.Prompt,
			Intent:        in,
			Template:      match.Template,
			PreviousError: prevErr,
			ReviewRetries: reviewRetries,
			Effort:        effortLadder[min(attempt, len(effortLadder)-1)],
		})
		if err != nil {
			o.logger.Warn("code generation attempt failed",
				"attempt", attempts, "error", err)
			continue
		}

		fixed := QuickFix(contract.Code)
		for _, fix := range fixed.Fixes {
			o.logger.Debug("quick-fix applied", "attempt", attempts, "fix", fix)
		}

		if genCtx.Err() != nil {
			break
		}
		vres := o.validator.Validate(genCtx, fixed.Code, contract.Config)
		if !vres.Valid {
			prevErr = numberErrors(vres.Errors)
			o.logger.Info("generated code failed validation",
				"attempt", attempts, "errors", len(vres.Errors))
			continue
		}

		if genCtx.Err() != nil {
			break
		}
		res := &Result{
			WorkflowID:       uuid.NewString(),
			Code:             fixed.Code,
			Config:           contract.Config,
			ConsumerContract: contract.ConsumerContract,
			Explanation:      contract.Explanation,
			Validation:       vres,
			Fixes:            fixed.Fixes,
			TemplateID:       match.Template.ID,
			TemplateName:     match.Template.Name,
			Confidence:       match.Confidence,
			Intent:           in,
			Attempts:         attempts,
		}
		if err := o.persist(genCtx, req, match.Template, res); err != nil {
			o.logger.Error("workflow persist failed", "error", err)
			break
		}

		o.recorder.RecordGeneration(metrics.OutcomeSuccess, time.Since(start))
		o.logger.Info("generation succeeded",
			"workflow_id", res.WorkflowID, "attempts", attempts,
			"duration_ms", time.Since(start).Milliseconds())
		return res, nil
	}

	res := o.fallback(ctx, req, in, match, attempts)
	o.recorder.RecordGeneration(metrics.OutcomeFallback, time.Since(start))
	return res, nil
}

func (o *Orchestrator) selectTemplate(req Request, in intent.Intent) (*templates.Match, bool) {
	if req.TemplateHint > 0 {
		return o.matcher.Force(req.TemplateHint)
	}
	return o.matcher.Match(in)
}

// fallback serves the template's bundled source with a config synthesized
// from the intent. It never returns an error: a persist failure is logged
// and the result goes out without a workflow id.
func (o *Orchestrator) fallback(ctx context.Context, req Request, in intent.Intent, match *templates.Match, attempts int) *Result {
	// The generation deadline has usually fired by now; the fallback gets
	// its own small budget detached from the caller's cancellation.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackBudget)
	defer cancel()

	t := match.Template
	cfg := fallbackConfig(t, in)

	fixed := QuickFix(t.Source)
	vres := o.validator.Validate(fctx, fixed.Code, cfg)

	res := &Result{
		WorkflowID:   uuid.NewString(),
		Code:         fixed.Code,
		Config:       cfg,
		Explanation:  fmt.Sprintf("Prebuilt %s template configured from your request.", t.Name),
		Validation:   vres,
		Fixes:        fixed.Fixes,
		Fallback:     true,
		TemplateID:   t.ID,
		TemplateName: t.Name,
		Confidence:   match.Confidence,
		Intent:       in,
		Attempts:     attempts,
	}

	if err := o.persist(fctx, req, t, res); err != nil {
		o.logger.Error("fallback persist failed",
			"template_id", t.ID, "error", err)
		res.WorkflowID = ""
	}

	o.logger.Info("generation fell back to template",
		"template_id", t.ID, "attempts", attempts, "valid", vres.Valid)
	return res
}

// fallbackConfig merges the intent's schedule over the template defaults for
// cron templates; everything else ships the defaults untouched.
func fallbackConfig(t *templates.Template, in intent.Intent) string {
	cfg := make(map[string]any, len(t.DefaultConfig)+1)
	for k, v := range t.DefaultConfig {
		cfg[k] = v
	}
	if t.TriggerType == intent.TriggerCron && in.Schedule != "" {
		cfg["schedule"] = in.Schedule
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

func (o *Orchestrator) persist(ctx context.Context, req Request, t *templates.Template, res *Result) error {
	w := &storage.Workflow{
		ID:           res.WorkflowID,
		Name:         t.Name,
		Description:  promptSummary(req.Prompt),
		Prompt:       req.Prompt,
		Code:         res.Code,
		Config:       res.Config,
		OwnerAddress: req.OwnerAddress,
		DeployStatus: storage.DeployStatusDraft,
		Category:     t.Category,
		TemplateID:   t.ID,
		Fallback:     res.Fallback,
	}
	return o.store.CreateWorkflow(ctx, w)
}

// numberErrors renders validator errors as the numbered list fed back to the
// model on the next attempt.
func numberErrors(errs []string) string {
	var sb strings.Builder
	for i, e := range errs {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, e)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// promptSummary trims a prompt to a description-sized line.
func promptSummary(prompt string) string {
	s := strings.Join(strings.Fields(prompt), " ")
	if len(s) <= 160 {
		return s
	}
	cut := strings.LastIndexByte(s[:160], ' ')
	if cut <= 0 {
		cut = 160
	}
	return s[:cut] + "…"
}
