// Package retry runs operations against flaky collaborators (HTTP fetches,
// RPC-shaped calls) with capped exponential backoff. Errors are classified by
// message signature: transport-level failures retry, everything else is
// terminal and returned immediately.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config bounds a retry loop. MaxRetries counts retries after the first
// attempt, so MaxRetries=2 allows three invocations in total.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig matches the backoff used for documentation fetches.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// retryableSignatures mark errors worth retrying: timeouts, connection
// drops, rate limits and gateway failures. Matching is case-insensitive.
var retryableSignatures = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"econnreset",
	"econnrefused",
	"etimedout",
	"rate limit",
	"too many requests",
	"429",
	"bad gateway",
	"gateway timeout",
	"502",
	"503",
	"504",
	"service unavailable",
}

// terminalSignatures short-circuit classification even when a retryable
// signature also appears in the message.
var terminalSignatures = []string{
	"execution reverted",
	"revert",
}

// IsRetryable reports whether err matches a known transient signature.
// Unknown errors are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range terminalSignatures {
		if strings.Contains(msg, sig) {
			return false
		}
	}
	for _, sig := range retryableSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// Do invokes op until it succeeds, fails terminally, or cfg.MaxRetries
// retries are exhausted. The delay before retry n (0-based) is
// min(cfg.MaxDelay, cfg.BaseDelay·2^n). Context cancellation stops the loop
// between attempts and is returned as-is.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.BaseDelay
	exp.Multiplier = 2
	exp.MaxInterval = cfg.MaxDelay
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()

	wrapped := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(cfg.MaxRetries)), ctx)
	return backoff.Retry(wrapped, policy)
}
