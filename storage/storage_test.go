package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "forge.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWorkflowRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	w := &storage.Workflow{
		ID:           "wf-1",
		Name:         "Price Alert",
		Prompt:       "alert me",
		Code:         "export function main() {}",
		Config:       `{"schedule":"*/5 * * * *"}`,
		OutputSchema: `{"type":"object"}`,
		OwnerAddress: "0xabc",
		PriceUSDC:    1_500_000,
		Published:    true,
		TemplateID:   1,
	}
	require.NoError(t, store.CreateWorkflow(ctx, w))

	got, err := store.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "Price Alert", got.Name)
	assert.Equal(t, int64(1_500_000), got.PriceUSDC)
	assert.True(t, got.Published)
	assert.Equal(t, storage.DeployStatusDraft, got.DeployStatus)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetWorkflowNotFound(t *testing.T) {
	store := openStore(t)
	_, err := store.GetWorkflow(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetWorkflowsBatch(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.CreateWorkflow(ctx, &storage.Workflow{ID: id}))
	}

	got, err := store.GetWorkflows(ctx, []string{"a", "c", "nope"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "a")
	assert.Contains(t, got, "c")
	assert.NotContains(t, got, "nope")
}

func TestEventAppendAndReplay(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 10; i++ {
		id, err := store.AppendEvent(ctx, "execution", []byte(`{"n":1}`))
		require.NoError(t, err)
		assert.Greater(t, id, last, "event ids must be monotone")
		last = id
	}

	events, err := store.EventsAfter(ctx, 7, 100)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(8), events[0].ID)
	assert.Equal(t, int64(9), events[1].ID)
	assert.Equal(t, int64(10), events[2].ID)
}

func TestEventsAfterHonorsLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		_, err := store.AppendEvent(ctx, "execution", nil)
		require.NoError(t, err)
	}

	events, err := store.EventsAfter(ctx, 0, 100)
	require.NoError(t, err)
	assert.Len(t, events, 100)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, int64(100), events[99].ID)
}

func TestPipelineLifecycle(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	p := &storage.Pipeline{
		ID:     "pl-1",
		Name:   "price then swap",
		Steps:  `[{"id":"s1","workflowId":"wf-1","position":0}]`,
		Active: true,
	}
	require.NoError(t, store.CreatePipeline(ctx, p))

	got, err := store.GetPipeline(ctx, "pl-1")
	require.NoError(t, err)
	assert.True(t, got.Active)

	require.NoError(t, store.DeactivatePipeline(ctx, "pl-1"))
	got, err = store.GetPipeline(ctx, "pl-1")
	require.NoError(t, err)
	assert.False(t, got.Active)

	active, err := store.ListPipelines(ctx, true, 0)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPipelineExecutionFinish(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	e := &storage.PipelineExecution{
		ID:         "ex-1",
		PipelineID: "pl-1",
		Status:     storage.PipelineStatusRunning,
	}
	require.NoError(t, store.CreatePipelineExecution(ctx, e))

	err := store.FinishPipelineExecution(ctx, "ex-1",
		storage.PipelineStatusCompleted, `[{"stepId":"s1","success":true}]`,
		`{"price":42}`, 1234)
	require.NoError(t, err)

	got, err := store.GetPipelineExecution(ctx, "ex-1")
	require.NoError(t, err)
	assert.Equal(t, storage.PipelineStatusCompleted, got.Status)
	assert.Equal(t, int64(1234), got.DurationMs)
	assert.Equal(t, `{"price":42}`, got.FinalOutput)
}

func TestSweepStaleRunningExecutions(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	stale := &storage.PipelineExecution{ID: "old", PipelineID: "pl", Status: storage.PipelineStatusRunning}
	require.NoError(t, store.CreatePipelineExecution(ctx, stale))
	fresh := &storage.PipelineExecution{ID: "new", PipelineID: "pl", Status: storage.PipelineStatusRunning}
	require.NoError(t, store.CreatePipelineExecution(ctx, fresh))

	// Nothing is older than ten minutes yet.
	n, capped, err := store.SweepStaleRunningExecutions(ctx, 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, capped)

	// With a zero age both rows qualify.
	n, capped, err = store.SweepStaleRunningExecutions(ctx, -time.Second, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, capped)

	got, err := store.GetPipelineExecution(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, storage.PipelineStatusFailed, got.Status)
}

func TestSweepBatchCap(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &storage.PipelineExecution{
			ID:         string(rune('a' + i)),
			PipelineID: "pl",
			Status:     storage.PipelineStatusRunning,
		}
		require.NoError(t, store.CreatePipelineExecution(ctx, e))
	}

	n, capped, err := store.SweepStaleRunningExecutions(ctx, -time.Second, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, capped, "two stale rows remain past the cap")
}

func TestExecutionRoundTrip(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	e := &storage.Execution{
		ID:         "ex-1",
		WorkflowID: "wf-1",
		Status:     storage.ExecutionStatusSuccess,
		Output:     `{"steps":2}`,
		DurationMs: 150,
	}
	require.NoError(t, store.CreateExecution(ctx, e))

	list, err := store.ListExecutions(ctx, "wf-1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, storage.ExecutionStatusSuccess, list[0].Status)
}
