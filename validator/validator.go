// Package validator checks generated workflow source against the platform
// constraints. Cheap textual checks run first; the external type-check
// subprocess only runs on source that already passed them.
package validator

import (
	"context"
	"log/slog"
	"time"
)

// Default settings for the type-check stage.
const (
	defaultTypeCheckTimeout = 15 * time.Second
	maxTypeCheckOutput      = 1024
)

// Result is the outcome of validating one workflow source + config pair.
// Errors carry a category prefix from the closed set [IMPORT], [ASYNC],
// [MAIN], [ZOD], [CONFIG], [TSC]. Warnings never affect Valid.
type Result struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings,omitempty"`
}

// Validator runs the constraint checks.
type Validator struct {
	tscPath          string
	typeCheckTimeout time.Duration
	logger           *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithTSCPath sets an explicit tsc binary path instead of searching PATH.
func WithTSCPath(path string) Option {
	return func(v *Validator) {
		v.tscPath = path
	}
}

// WithTypeCheckTimeout overrides the type-check subprocess timeout.
func WithTypeCheckTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.typeCheckTimeout = d
	}
}

// New creates a Validator.
func New(logger *slog.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := &Validator{
		typeCheckTimeout: defaultTypeCheckTimeout,
		logger:           logger.With("component", "validator"),
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Validate runs every check. The type-check stage is skipped when any cheap
// check fails, so its errors never mix with cheaper, more actionable ones.
func (v *Validator) Validate(ctx context.Context, source, configJSON string) Result {
	res := v.ValidateStatic(source, configJSON)
	if !res.Valid {
		return res
	}

	errs, warns := v.runTypeCheck(ctx, source)
	res.Errors = append(res.Errors, errs...)
	res.Warnings = append(res.Warnings, warns...)
	res.Valid = len(res.Errors) == 0

	if !res.Valid {
		v.logger.Debug("validation failed at type-check stage", "errors", len(res.Errors))
	}
	return res
}

// ValidateStatic runs only the textual checks. Comments are stripped once up
// front so commented-out code never trips a check.
func (v *Validator) ValidateStatic(source, configJSON string) Result {
	code := stripComments(source)

	var errs []string
	errs = append(errs, checkImports(code)...)
	errs = append(errs, checkAsync(code)...)
	errs = append(errs, checkMain(code)...)
	errs = append(errs, checkZod(code)...)
	errs = append(errs, checkConfig(code, configJSON)...)

	if len(errs) > 0 {
		v.logger.Debug("static validation failed", "errors", len(errs))
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}
