// Package sandbox executes generated workflows through the external cre CLI
// inside a throwaway directory. A simulation moves through admission,
// materialization, dependency linking, the CLI run and trace parsing; every
// failure except a missing simulator binary comes back as a Result with
// success=false rather than an error.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainweave/forge/metrics"
	"github.com/chainweave/forge/semaphore"
)

// Simulation bounds.
const (
	MaxConcurrent   = 3
	installTimeout  = 30 * time.Second
	simulateTimeout = 60 * time.Second

	// maxOutputBytes caps each captured CLI stream.
	maxOutputBytes = 2 << 20

	// stderrHeadLen bounds how much install/CLI stderr is quoted in a
	// synthetic error.
	stderrHeadLen = 500
)

// packageJSON names the two runtime dependencies every generated workflow
// may import.
const packageJSON = `{
  "name": "forge-sim",
  "version": "0.0.0",
  "private": true,
  "type": "module",
  "dependencies": {
    "@chainlink/cre-sdk": "latest",
    "zod": "latest"
  }
}
`

// secretEnvKeys are mirrored into the CLI environment as CRE_SECRET_<NAME>
// so simulated workflows can resolve secrets the way deployed ones do.
var secretEnvKeys = []string{"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY"}

// CLIError reports a simulator binary that could not be launched. It is the
// one sandbox failure surfaced as an error instead of a failed Result.
type CLIError struct {
	Path string
	err  error
}

func (e *CLIError) Error() string {
	return fmt.Sprintf("simulator cli %q unavailable: %s", e.Path, e.err)
}

func (e *CLIError) Unwrap() error { return e.err }

// Result is the outcome of one simulation. Steps serialize as "trace" to
// match the simulate response shape.
type Result struct {
	Success    bool     `json:"success"`
	Steps      []Step   `json:"trace"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	DurationMS int64    `json:"duration"`
	RawOutput  string   `json:"rawOutput,omitempty"`
}

// Config carries the sandbox knobs from the service configuration.
type Config struct {
	// CLIPath is the cre binary; empty searches PATH for "cre".
	CLIPath string
	// DepCacheDir is a pre-installed node_modules tree symlinked into each
	// simulation directory. Empty always installs.
	DepCacheDir string
	// WorkDir hosts the per-simulation temp directories; empty uses the OS
	// temp dir.
	WorkDir string
}

// Runner executes simulations with bounded concurrency.
type Runner struct {
	cfg      Config
	sem      *semaphore.Semaphore
	recorder *metrics.Recorder
	logger   *slog.Logger
}

// NewRunner builds a Runner. One runner is shared by the simulate endpoint
// and every pipeline step.
func NewRunner(cfg Config, recorder *metrics.Recorder, logger *slog.Logger) *Runner {
	if cfg.CLIPath == "" {
		cfg.CLIPath = "cre"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:      cfg,
		sem:      semaphore.New(MaxConcurrent),
		recorder: recorder,
		logger:   logger.With("component", "sandbox"),
	}
}

// Simulate runs source with configJSON through the CLI and parses the trace.
// The returned error is non-nil only for admission failures and a missing
// simulator binary; everything else is a Result with success=false.
func (r *Runner) Simulate(ctx context.Context, source, configJSON string) (*Result, error) {
	if err := r.sem.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("simulation admission: %w", err)
	}
	defer r.sem.Release()

	start := time.Now()

	dir, err := os.MkdirTemp(r.cfg.WorkDir, "forge-sim-*")
	if err != nil {
		return r.failure(start, fmt.Sprintf("create simulation directory: %v", err)), nil
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			r.logger.Warn("simulation cleanup failed", "dir", dir, "error", err)
		}
	}()

	if err := materialize(dir, source, configJSON); err != nil {
		return r.failure(start, err.Error()), nil
	}

	if msg, ok := r.ensureDeps(ctx, dir); !ok {
		return r.failure(start, msg), nil
	}

	stdout, stderr, exitCode, err := r.runCLI(ctx, dir)
	if err != nil {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			r.recorder.RecordSimulation(false, time.Since(start))
			return nil, err
		}
		return r.failure(start, err.Error()), nil
	}

	trace := ParseTrace(stdout)
	res := &Result{
		Steps:      trace.Steps,
		Errors:     trace.Errors,
		Warnings:   trace.Warnings,
		DurationMS: time.Since(start).Milliseconds(),
		RawOutput:  stdout,
	}
	if exitCode != 0 {
		msg := fmt.Sprintf("simulator exited with code %d", exitCode)
		if head := strings.TrimSpace(stderr); head != "" {
			msg += ": " + truncate(head, stderrHeadLen)
		}
		res.Errors = append(res.Errors, msg)
	}
	res.Success = exitCode == 0 && len(res.Errors) == 0

	r.recorder.RecordSimulation(res.Success, time.Since(start))
	r.logger.Info("simulation finished",
		"success", res.Success,
		"steps", len(res.Steps),
		"errors", len(res.Errors),
		"duration_ms", res.DurationMS)
	return res, nil
}

func (r *Runner) failure(start time.Time, msg string) *Result {
	r.recorder.RecordSimulation(false, time.Since(start))
	r.logger.Info("simulation failed before the CLI ran", "error", msg)
	return &Result{
		Success:    false,
		Errors:     []string{msg},
		DurationMS: time.Since(start).Milliseconds(),
	}
}

func materialize(dir, source, configJSON string) error {
	if strings.TrimSpace(configJSON) == "" {
		configJSON = "{}"
	}
	files := map[string]string{
		"workflow.ts":  source,
		"config.json":  configJSON,
		"package.json": packageJSON,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			return fmt.Errorf("materialize %s: %v", name, err)
		}
	}
	return nil
}

// ensureDeps links the cached node_modules when available, otherwise runs a
// real install. Returns a synthetic error message when dependencies cannot
// be provided.
func (r *Runner) ensureDeps(ctx context.Context, dir string) (string, bool) {
	if r.cfg.DepCacheDir != "" {
		if err := os.Symlink(r.cfg.DepCacheDir, filepath.Join(dir, "node_modules")); err == nil {
			return "", true
		} else {
			r.logger.Debug("dep cache link failed, falling back to install", "error", err)
		}
	}

	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, "npm", "install", "--no-audit", "--no-fund")
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if installCtx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("dependency install timed out after %s", installTimeout), false
		}
		head := truncate(strings.TrimSpace(stderr.String()), stderrHeadLen)
		if head == "" {
			head = err.Error()
		}
		return "dependency install failed: " + head, false
	}
	return "", true
}

func (r *Runner) runCLI(ctx context.Context, dir string) (stdout, stderr string, exitCode int, err error) {
	path, lookErr := exec.LookPath(r.cfg.CLIPath)
	if lookErr != nil {
		return "", "", 0, &CLIError{Path: r.cfg.CLIPath, err: lookErr}
	}

	simCtx, cancel := context.WithTimeout(ctx, simulateTimeout)
	defer cancel()

	cmd := exec.CommandContext(simCtx, path,
		"workflow", "simulate", "workflow.ts",
		"--config", "config.json",
		"--non-interactive")
	cmd.Dir = dir
	cmd.Env = secretEnv()

	outBuf := &capWriter{limit: maxOutputBytes}
	errBuf := &capWriter{limit: maxOutputBytes}
	cmd.Stdout = outBuf
	cmd.Stderr = errBuf

	runErr := cmd.Run()
	switch {
	case runErr == nil:
		return outBuf.String(), errBuf.String(), 0, nil
	case simCtx.Err() == context.DeadlineExceeded:
		return outBuf.String(), errBuf.String(), 0,
			fmt.Errorf("simulation timed out after %s", simulateTimeout)
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
		}
		// LookPath succeeded but the spawn failed; the binary is unusable.
		return "", "", 0, &CLIError{Path: r.cfg.CLIPath, err: runErr}
	}
}

// secretEnv copies the process environment and mirrors provider keys into
// the CRE_SECRET_* names the simulated workflow resolves.
func secretEnv() []string {
	env := os.Environ()
	for _, key := range secretEnvKeys {
		if v := os.Getenv(key); v != "" {
			env = append(env, "CRE_SECRET_"+key+"="+v)
		}
	}
	return env
}

// capWriter keeps the first limit bytes and counts what it drops.
type capWriter struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func (w *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	if room := w.limit - w.buf.Len(); room > 0 {
		if n <= room {
			w.buf.Write(p)
		} else {
			w.buf.Write(p[:room])
			w.dropped += int64(n - room)
		}
	} else {
		w.dropped += int64(n)
	}
	return n, nil
}

func (w *capWriter) String() string {
	if w.dropped > 0 {
		return fmt.Sprintf("%s\n[output truncated, %d bytes dropped]", w.buf.String(), w.dropped)
	}
	return w.buf.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
