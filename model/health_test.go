package model

import (
	"testing"
	"time"
)

func TestEndpointHealthTracking(t *testing.T) {
	r := NewDefaultRegistry()

	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Error("expected claude-sonnet to be available initially")
	}

	// No health info should exist before any request.
	if health := r.GetEndpointHealth("claude-sonnet"); health != nil {
		t.Error("expected no health info before any requests")
	}

	r.MarkEndpointSuccess("claude-sonnet")

	health := r.GetEndpointHealth("claude-sonnet")
	if health == nil {
		t.Fatal("expected health info after success")
	}
	if !health.Available {
		t.Error("expected endpoint to be available after success")
	}
	if health.FailureCount != 0 {
		t.Errorf("expected failure count 0, got %d", health.FailureCount)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	r := NewDefaultRegistry()

	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	// First failure leaves the endpoint available.
	r.MarkEndpointFailure("claude-sonnet")
	if !r.IsEndpointAvailable("claude-sonnet") {
		t.Error("expected claude-sonnet to be available after 1 failure")
	}

	// Second failure opens the circuit.
	r.MarkEndpointFailure("claude-sonnet")
	if r.IsEndpointAvailable("claude-sonnet") {
		t.Error("expected claude-sonnet to be unavailable after circuit opens")
	}

	health := r.GetEndpointHealth("claude-sonnet")
	if health == nil {
		t.Fatal("expected health info")
	}
	if !health.CircuitOpen {
		t.Error("expected circuit to be open")
	}
	if health.FailureCount != 2 {
		t.Errorf("expected failure count 2, got %d", health.FailureCount)
	}
}

func TestCircuitBreakerRecovery(t *testing.T) {
	r := NewDefaultRegistry()

	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  50 * time.Millisecond,
	})

	r.MarkEndpointFailure("gpt-4o")
	if r.IsEndpointAvailable("gpt-4o") {
		t.Error("expected gpt-4o to be unavailable immediately after failure")
	}

	time.Sleep(60 * time.Millisecond)

	// Recovery window elapsed: half-open probe allowed.
	if !r.IsEndpointAvailable("gpt-4o") {
		t.Error("expected gpt-4o to be available after recovery timeout")
	}

	r.MarkEndpointSuccess("gpt-4o")
	health := r.GetEndpointHealth("gpt-4o")
	if health == nil {
		t.Fatal("expected health info")
	}
	if health.CircuitOpen {
		t.Error("expected circuit to be closed after success")
	}
	if health.FailureCount != 0 {
		t.Errorf("expected failure count reset to 0, got %d", health.FailureCount)
	}
}

func TestGetAvailableFallbackChain(t *testing.T) {
	r := NewDefaultRegistry()

	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	r.MarkEndpointFailure("claude-sonnet")

	chain := r.GetAvailableFallbackChain(CapabilityCodegen)
	for _, name := range chain {
		if name == "claude-sonnet" {
			t.Error("expected claude-sonnet to be excluded from available chain")
		}
	}

	hasOpenAI := false
	for _, name := range chain {
		if name == "gpt-4o" {
			hasOpenAI = true
			break
		}
	}
	if !hasOpenAI {
		t.Error("expected gpt-4o to remain in available chain")
	}
}

func TestGetAvailableFallbackChainAllUnavailable(t *testing.T) {
	r := NewDefaultRegistry()

	r.SetHealthConfig(HealthConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Hour,
	})

	for _, name := range r.ListEndpoints() {
		r.MarkEndpointFailure(name)
	}

	// Full chain comes back; trying something beats trying nothing.
	chain := r.GetAvailableFallbackChain(CapabilityCodegen)
	if len(chain) != 3 {
		t.Errorf("expected full chain of 3, got %v", chain)
	}
}

func TestResetEndpointHealth(t *testing.T) {
	r := NewDefaultRegistry()

	r.MarkEndpointSuccess("gemini-flash")
	r.MarkEndpointFailure("gemini-flash")

	if r.GetEndpointHealth("gemini-flash") == nil {
		t.Fatal("expected health info")
	}

	r.ResetEndpointHealth("gemini-flash")

	if r.GetEndpointHealth("gemini-flash") != nil {
		t.Error("expected no health info after reset")
	}
	if !r.IsEndpointAvailable("gemini-flash") {
		t.Error("expected gemini-flash to be available after reset")
	}
}

func TestDefaultHealthConfig(t *testing.T) {
	cfg := DefaultHealthConfig()

	if cfg.FailureThreshold != 3 {
		t.Errorf("expected failure threshold 3, got %d", cfg.FailureThreshold)
	}
	if cfg.RecoveryTimeout != 30*time.Second {
		t.Errorf("expected recovery timeout 30s, got %v", cfg.RecoveryTimeout)
	}
	if cfg.HalfOpenRequests != 1 {
		t.Errorf("expected 1 half-open request, got %d", cfg.HalfOpenRequests)
	}
}
