package sweeper_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/sweeper"
)

type sweepCall struct {
	maxAge time.Duration
	limit  int
}

type stubStore struct {
	pending []sweepCall
	running []sweepCall
	swept   int
	more    bool
	err     error
}

func (s *stubStore) SweepStalePendingWorkflows(_ context.Context, maxAge time.Duration, limit int) (int, bool, error) {
	s.pending = append(s.pending, sweepCall{maxAge, limit})
	return s.swept, s.more, s.err
}

func (s *stubStore) SweepStaleRunningExecutions(_ context.Context, maxAge time.Duration, limit int) (int, bool, error) {
	s.running = append(s.running, sweepCall{maxAge, limit})
	return s.swept, s.more, s.err
}

func TestRunSweepsBothTables(t *testing.T) {
	st := &stubStore{swept: 3}
	sweeper.New(st, slog.Default()).Run(context.Background())

	require.Len(t, st.pending, 1)
	assert.Equal(t, sweepCall{sweeper.PendingWorkflowAge, sweeper.BatchLimit}, st.pending[0])

	require.Len(t, st.running, 1)
	assert.Equal(t, sweepCall{sweeper.RunningExecutionAge, sweeper.BatchLimit}, st.running[0])
}

func TestRunSwallowsStoreErrors(t *testing.T) {
	st := &stubStore{err: errors.New("db locked")}
	sweeper.New(st, slog.Default()).Run(context.Background())

	// Both sweeps are attempted even when the first fails.
	assert.Len(t, st.pending, 1)
	assert.Len(t, st.running, 1)
}

func TestRunReportsCapHit(t *testing.T) {
	st := &stubStore{swept: sweeper.BatchLimit, more: true}

	// The cap only warns; it never escalates.
	sweeper.New(st, slog.Default()).Run(context.Background())
	assert.Len(t, st.pending, 1)
	assert.Len(t, st.running, 1)
}
