// Package generator drives workflow code generation: the LLM adapter that
// enforces the structured six-field contract, the deterministic quick-fix
// rewrites, and the orchestrator that ties intent parsing, template matching,
// prompt assembly and validation into one bounded pipeline.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chainweave/forge/intent"
	"github.com/chainweave/forge/llm"
	"github.com/chainweave/forge/model"
	"github.com/chainweave/forge/prompt"
	"github.com/chainweave/forge/templates"
)

// ErrAIService marks LLM failures the caller cannot act on: refusals, empty
// payloads, contract violations. The orchestrator absorbs it into the
// fallback path; the HTTP layer maps any escape to AI_SERVICE_ERROR.
type AIServiceError struct {
	Reason string
	err    error
}

func (e *AIServiceError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("ai service: %s: %s", e.Reason, e.err)
	}
	return fmt.Sprintf("ai service: %s", e.Reason)
}

func (e *AIServiceError) Unwrap() error { return e.err }

func aiErr(reason string, err error) error {
	return &AIServiceError{Reason: reason, err: err}
}

// Contract is the structured output the LLM must return. Config stays a JSON
// string; it is parsed by the validator, not here.
type Contract struct {
	Reasoning        string `json:"reasoning"`
	Code             string `json:"code"`
	Config           string `json:"config"`
	ConsumerContract string `json:"consumerContract,omitempty"`
	SelfReview       string `json:"selfReview"`
	Explanation      string `json:"explanation"`
}

// contractSchemaJSON validates the decoded response shape before the typed
// decode is trusted. consumerContract is the one optional field.
const contractSchemaJSON = `{
  "type": "object",
  "properties": {
    "reasoning": {"type": "string"},
    "code": {"type": "string"},
    "config": {"type": "string"},
    "consumerContract": {"type": "string"},
    "selfReview": {"type": "string"},
    "explanation": {"type": "string"}
  },
  "required": ["reasoning", "code", "config", "selfReview", "explanation"]
}`

var contractSchema = mustCompileContract()

func mustCompileContract() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(contractSchemaJSON))
	if err != nil {
		panic(fmt.Sprintf("generator: decode contract schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("forge://generator/contract.json", doc); err != nil {
		panic(fmt.Sprintf("generator: register contract schema: %v", err))
	}
	compiled, err := c.Compile("forge://generator/contract.json")
	if err != nil {
		panic(fmt.Sprintf("generator: compile contract schema: %v", err))
	}
	return compiled
}

// redFlag pairs a violation keyword with the sentiment words that turn a
// self-review mention into an admission. An empty sentiment list means the
// violation phrase alone is damning.
type redFlag struct {
	violation  string
	sentiments []string
}

var redFlags = []redFlag{
	{violation: "async", sentiments: []string{"found", "detected", "uses", "has", "violation", "issue"}},
	{violation: "await", sentiments: []string{"found", "detected", "uses", "has", "violation", "issue"}},
	{violation: "getconfig", sentiments: []string{"uses", "found", "still", "calls"}},
	{violation: "missing runner"},
	{violation: "missing handler"},
	{violation: "missing export"},
	{violation: "missing main"},
}

// scanSelfReview returns a description of the first red flag admitted by the
// self-review, or "" when the review reads clean.
func scanSelfReview(review string) string {
	lower := strings.ToLower(review)
	for _, rf := range redFlags {
		if !strings.Contains(lower, rf.violation) {
			continue
		}
		if len(rf.sentiments) == 0 {
			return fmt.Sprintf("self-review admits %q", rf.violation)
		}
		for _, s := range rf.sentiments {
			if strings.Contains(lower, s) {
				return fmt.Sprintf("self-review admits %q (%s)", rf.violation, s)
			}
		}
	}
	return ""
}

// Completer is the slice of llm.Client the adapter needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// GenerateParams is one adapter invocation. ReviewRetries bounds the
// internal red-flag loop; the orchestrator passes a smaller budget on its
// own retries so the two loops cannot multiply.
type GenerateParams struct {
	Prompt             string
	Intent             intent.Intent
	Template           *templates.Template
	PreviousError      string
	PreviousSelfReview string
	ReviewRetries      int
	Effort             string
}

// Adapter turns prompts into validated Contracts via the codegen capability.
type Adapter struct {
	client  Completer
	builder *prompt.Builder
	logger  *slog.Logger
}

// NewAdapter wires the adapter to an LLM client and the prompt builder.
func NewAdapter(client Completer, builder *prompt.Builder, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		client:  client,
		builder: builder,
		logger:  logger.With("component", "codegen-adapter"),
	}
}

// Generate calls the LLM until the self-review reads clean or the review
// budget is spent. The last contract is returned even when still flagged;
// static validation downstream is the real gate.
func (a *Adapter) Generate(ctx context.Context, p GenerateParams) (*Contract, error) {
	prevReview := p.PreviousSelfReview

	var contract *Contract
	for try := 0; try <= p.ReviewRetries; try++ {
		msgs := a.builder.Build(prompt.Request{
			UserPrompt:         p.Prompt,
			Intent:             p.Intent,
			Template:           p.Template,
			PreviousError:      p.PreviousError,
			PreviousSelfReview: prevReview,
		})

		c, err := a.call(ctx, msgs, p.Effort)
		if err != nil {
			return nil, err
		}
		contract = c

		flag := scanSelfReview(c.SelfReview)
		if flag == "" {
			return c, nil
		}
		a.logger.Debug("red flag in self-review",
			"flag", flag,
			"try", try,
			"retries_left", p.ReviewRetries-try)
		prevReview = c.SelfReview
	}
	return contract, nil
}

// call performs one LLM round trip and decodes the contract.
func (a *Adapter) call(ctx context.Context, msgs prompt.Messages, effort string) (*Contract, error) {
	temperature := 0.2
	resp, err := a.client.Complete(ctx, llm.Request{
		Capability: model.CapabilityCodegen.String(),
		Messages: []llm.Message{
			{Role: "system", Content: msgs.System},
			{Role: "user", Content: msgs.User},
		},
		Temperature:     &temperature,
		ReasoningEffort: effort,
	})
	if err != nil {
		return nil, aiErr("completion failed", err)
	}
	if resp.Refusal != "" {
		return nil, aiErr(fmt.Sprintf("model refused: %s", resp.Refusal), nil)
	}

	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, aiErr("response carried no JSON object", nil)
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
	if err != nil {
		return nil, aiErr("response JSON does not parse", err)
	}
	if err := contractSchema.Validate(inst); err != nil {
		return nil, aiErr("response violates the output contract", err)
	}

	var c Contract
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, aiErr("decode contract", err)
	}
	if strings.TrimSpace(c.Code) == "" {
		return nil, aiErr("contract carries empty workflow code", nil)
	}
	if strings.TrimSpace(c.Config) == "" {
		c.Config = "{}"
	}
	return &c, nil
}
