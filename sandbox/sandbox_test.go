package sandbox_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/sandbox"
)

// A missing simulator binary is an operator problem, not a workflow problem,
// so Simulate surfaces it as a CLIError instead of a failed result.
func TestSimulateMissingCLI(t *testing.T) {
	cfg := sandbox.Config{
		CLIPath: "/nonexistent/cre-binary",
		// Point the dependency cache at a real directory so the node_modules
		// symlink succeeds and npm is never invoked.
		DepCacheDir: t.TempDir(),
		WorkDir:     t.TempDir(),
	}
	runner := sandbox.NewRunner(cfg, metrics.NewRecorder(nil), slog.Default())

	res, err := runner.Simulate(context.Background(), "export function main() {}", "{}")

	require.Error(t, err)
	assert.Nil(t, res)

	var cliErr *sandbox.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, "/nonexistent/cre-binary", cliErr.Path)
	assert.Contains(t, cliErr.Error(), "unavailable")
}
