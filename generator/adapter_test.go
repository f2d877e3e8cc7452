package generator_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/docs"
	"github.com/chainweave/forge/generator"
	"github.com/chainweave/forge/intent"
	"github.com/chainweave/forge/llm"
	"github.com/chainweave/forge/prompt"
	"github.com/chainweave/forge/templates"
)

type stubCompleter struct {
	responses []*llm.Response
	err       error
	calls     []llm.Request
}

func (s *stubCompleter) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.calls) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func contractJSON(t *testing.T, code, review string) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{
		"reasoning":   "cron trigger, one price read, one report",
		"code":        code,
		"config":      `{"schedule": "*/5 * * * *"}`,
		"selfReview":  review,
		"explanation": "Checks the price every five minutes.",
	})
	require.NoError(t, err)
	return string(raw)
}

func testGenerateParams(t *testing.T, retries int) generator.GenerateParams {
	t.Helper()
	in := intent.NewParser(slog.Default()).Parse(
		"Every 5 minutes check ETH price and alert when it drops below $3000")
	tpl, ok := templates.NewMatcher(slog.Default()).ByID(1)
	require.True(t, ok)
	return generator.GenerateParams{
		Prompt:        "Every 5 minutes check ETH price and alert when it drops below $3000",
		Intent:        in,
		Template:      tpl,
		ReviewRetries: retries,
		Effort:        "low",
	}
}

func newTestAdapter(client *stubCompleter) *generator.Adapter {
	builder := prompt.NewBuilder(
		templates.NewMatcher(slog.Default()),
		docs.NewStore("", slog.Default()),
		slog.Default())
	return generator.NewAdapter(client, builder, slog.Default())
}

func TestGenerateReturnsCleanContract(t *testing.T) {
	client := &stubCompleter{responses: []*llm.Response{
		{Content: contractJSON(t, "export function main() {}", "All constraints satisfied.")},
	}}
	a := newTestAdapter(client)

	got, err := a.Generate(context.Background(), testGenerateParams(t, 2))

	require.NoError(t, err)
	assert.Equal(t, "export function main() {}", got.Code)
	assert.Len(t, client.calls, 1)
	assert.Equal(t, "codegen", client.calls[0].Capability)
	assert.Equal(t, "low", client.calls[0].ReasoningEffort)
}

func TestGenerateRetriesOnRedFlag(t *testing.T) {
	flagged := contractJSON(t, "const x = 1;", "I found the handler still uses async/await.")
	clean := contractJSON(t, "export function main() {}", "Handler is synchronous, all constraints hold.")
	client := &stubCompleter{responses: []*llm.Response{
		{Content: flagged},
		{Content: clean},
	}}
	a := newTestAdapter(client)

	got, err := a.Generate(context.Background(), testGenerateParams(t, 2))

	require.NoError(t, err)
	require.Len(t, client.calls, 2)
	assert.Equal(t, "export function main() {}", got.Code)

	// The second call must carry the flagged self-review back to the model.
	retryUser := client.calls[1].Messages[1].Content
	assert.Contains(t, retryUser, "I found the handler still uses async/await.")
}

func TestGenerateReturnsLastContractWhenStillFlagged(t *testing.T) {
	flagged := contractJSON(t, "const x = 1;", "Issue: await detected in the callback.")
	client := &stubCompleter{responses: []*llm.Response{{Content: flagged}}}
	a := newTestAdapter(client)

	got, err := a.Generate(context.Background(), testGenerateParams(t, 1))

	require.NoError(t, err)
	assert.Len(t, client.calls, 2)
	assert.Equal(t, "const x = 1;", got.Code)
}

func TestGenerateRefusalIsAIServiceError(t *testing.T) {
	client := &stubCompleter{responses: []*llm.Response{
		{Refusal: "cannot produce this workflow"},
	}}
	a := newTestAdapter(client)

	_, err := a.Generate(context.Background(), testGenerateParams(t, 2))

	var aiErr *generator.AIServiceError
	require.ErrorAs(t, err, &aiErr)
	assert.Contains(t, aiErr.Reason, "refused")
}

func TestGenerateRejectsNonJSONResponse(t *testing.T) {
	client := &stubCompleter{responses: []*llm.Response{
		{Content: "Sure! Here is a workflow for you."},
	}}
	a := newTestAdapter(client)

	_, err := a.Generate(context.Background(), testGenerateParams(t, 0))

	var aiErr *generator.AIServiceError
	require.ErrorAs(t, err, &aiErr)
}

func TestGenerateRejectsContractMissingFields(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"code": "export function main() {}"})
	require.NoError(t, err)
	client := &stubCompleter{responses: []*llm.Response{{Content: string(raw)}}}
	a := newTestAdapter(client)

	_, err = a.Generate(context.Background(), testGenerateParams(t, 0))

	var aiErr *generator.AIServiceError
	require.ErrorAs(t, err, &aiErr)
	assert.Contains(t, aiErr.Reason, "contract")
}

func TestGenerateRejectsBlankCode(t *testing.T) {
	client := &stubCompleter{responses: []*llm.Response{
		{Content: contractJSON(t, "   ", "fine")},
	}}
	a := newTestAdapter(client)

	_, err := a.Generate(context.Background(), testGenerateParams(t, 0))

	var aiErr *generator.AIServiceError
	require.ErrorAs(t, err, &aiErr)
}

func TestGenerateAcceptsFencedJSON(t *testing.T) {
	fenced := "Here you go:\n```json\n" +
		contractJSON(t, "export function main() {}", "Clean.") +
		"\n```\n"
	client := &stubCompleter{responses: []*llm.Response{{Content: fenced}}}
	a := newTestAdapter(client)

	got, err := a.Generate(context.Background(), testGenerateParams(t, 0))

	require.NoError(t, err)
	assert.Equal(t, "export function main() {}", got.Code)
}

func TestGenerateWrapsTransportError(t *testing.T) {
	client := &stubCompleter{err: errors.New("all endpoints exhausted")}
	a := newTestAdapter(client)

	_, err := a.Generate(context.Background(), testGenerateParams(t, 2))

	var aiErr *generator.AIServiceError
	require.ErrorAs(t, err, &aiErr)
	assert.ErrorContains(t, err, "all endpoints exhausted")
	// A transport failure is not retried by the review loop.
	assert.Len(t, client.calls, 1)
}
